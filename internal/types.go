package internal

import (
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is the session material captured by the external browser login.
type Credentials struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	Cookies      map[string]string `json:"cookies,omitempty"`
	AppID        string            `json:"x-talk-app-id,omitempty"`
	UserAgent    string            `json:"user-agent,omitempty"`
}

// Clone returns a deep copy so callers never share the cookie map.
func (c Credentials) Clone() Credentials {
	out := c
	if c.Cookies != nil {
		out.Cookies = maps.Clone(c.Cookies)
	}
	return out
}

// Equal reports whether c and other hold the same session material.
func (c Credentials) Equal(other Credentials) bool {
	return c.AccessToken == other.AccessToken &&
		c.RefreshToken == other.RefreshToken &&
		c.AppID == other.AppID &&
		c.UserAgent == other.UserAgent &&
		maps.Equal(c.Cookies, other.Cookies)
}

// IsAuthenticated reports whether an access token is present.
func (c Credentials) IsAuthenticated() bool {
	return c.AccessToken != ""
}

// ExpiresAt returns the exp claim of a JWT access token. Opaque tokens,
// or tokens without exp, report ok=false. The signature is not verified:
// the server is the authority, this only lets us refresh before a 401.
func (c Credentials) ExpiresAt() (time.Time, bool) {
	if c.AccessToken == "" {
		return time.Time{}, false
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.AccessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// GroupStatus is the subscription state of a group.
type GroupStatus string

const (
	GroupStatusActive    GroupStatus = "active"
	GroupStatusExpired   GroupStatus = "expired"
	GroupStatusSuspended GroupStatus = "suspended"
	GroupStatusCanceled  GroupStatus = "canceled"
)

// IsKnown reports whether s is one of the documented subscription states.
func (s GroupStatus) IsKnown() bool {
	switch s {
	case GroupStatusActive, GroupStatusExpired, GroupStatusSuspended, GroupStatusCanceled:
		return true
	default:
		return false
	}
}

// Group is an artist/group the user may be subscribed to.
type Group struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Status    GroupStatus `json:"status"`
	Thumbnail string      `json:"thumbnail,omitempty"`
}

// Member is a timeline within a group.
type Member struct {
	ID         int64  `json:"id"`
	GroupID    int64  `json:"group_id"`
	Name       string `json:"name"`
	Portrait   string `json:"portrait,omitempty"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	PhoneImage string `json:"phone_image,omitempty"`
}

// MessageType is the normalized kind of a message.
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypePicture MessageType = "picture"
	MessageTypeVideo   MessageType = "video"
	MessageTypeVoice   MessageType = "voice"
)

// ParseMessageType maps the raw API type onto the normalized set.
func ParseMessageType(raw string) MessageType {
	switch raw {
	case "image", "picture":
		return MessageTypePicture
	case "video", "movie":
		return MessageTypeVideo
	case "voice":
		return MessageTypeVoice
	default:
		return MessageTypeText
	}
}

// Attachment is a media resource referenced by a message.
type Attachment struct {
	URL string `json:"url"`
	// Kind is the raw API type (image, movie, voice, ...), used to pick a file extension.
	Kind        string `json:"kind"`
	IsThumbnail bool   `json:"is_thumbnail,omitempty"`
}

// Message is a single timeline entry. IDs increase monotonically within a group.
type Message struct {
	ID          int64        `json:"id"`
	GroupID     int64        `json:"group_id"`
	MemberID    int64        `json:"member_id"`
	Type        MessageType  `json:"type"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at,omitzero"`
	IsFavorite  bool         `json:"is_favorite"`
}

// PrimaryMedia returns the attachment to download for the message: the
// full file when present, otherwise its thumbnail.
func (m Message) PrimaryMedia() (Attachment, bool) {
	for _, a := range m.Attachments {
		if !a.IsThumbnail {
			return a, true
		}
	}
	if len(m.Attachments) > 0 {
		return m.Attachments[0], true
	}
	return Attachment{}, false
}

// MediaJob is a pending media download produced by the sync manager.
type MediaJob struct {
	URL       string `json:"url"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp,omitempty"`
}
