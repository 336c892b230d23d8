package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"msgfetch/internal"
)

// Wire records mirror the API's JSON. They are checked and converted into
// internal types at the boundary so nothing untyped leaks out.

type subscriptionRecord struct {
	State string `json:"state"`
}

type groupRecord struct {
	ID           int64               `json:"id" validate:"gt=0"`
	Name         string              `json:"name" validate:"required"`
	Thumbnail    string              `json:"thumbnail"`
	Subscription *subscriptionRecord `json:"subscription"`
}

type memberRecord struct {
	ID         int64  `json:"id" validate:"gt=0"`
	GroupID    int64  `json:"group_id" validate:"gte=0"`
	Name       string `json:"name" validate:"required"`
	Portrait   string `json:"portrait"`
	Thumbnail  string `json:"thumbnail"`
	PhoneImage string `json:"phone_image"`
}

type messageRecord struct {
	ID          int64   `json:"id" validate:"gt=0"`
	GroupID     int64   `json:"group_id" validate:"gte=0"`
	MemberID    int64   `json:"member_id" validate:"gte=0"`
	Type        string  `json:"type"`
	Text        *string `json:"text"`
	File        string  `json:"file" validate:"omitempty,url"`
	Thumbnail   string  `json:"thumbnail" validate:"omitempty,url"`
	PublishedAt string  `json:"published_at" validate:"required"`
	UpdatedAt   string  `json:"updated_at"`
	IsFavorite  bool    `json:"is_favorite"`
}

type timelineRecord struct {
	Messages     *[]messageRecord `json:"messages"`
	Continuation string           `json:"continuation"`
}

var recordValidator = validator.New(validator.WithRequiredStructEnabled())

func validateRecords[T any](records []T) error {
	for i := range records {
		if err := recordValidator.Struct(&records[i]); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

func decodeGroups(body []byte) (Page[groupRecord], error) {
	var records []groupRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return Page[groupRecord]{}, fmt.Errorf("groups: expected a JSON array: %w", err)
	}
	if err := validateRecords(records); err != nil {
		return Page[groupRecord]{}, err
	}
	return Page[groupRecord]{Items: records}, nil
}

func decodeMembers(body []byte) (Page[memberRecord], error) {
	var records []memberRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return Page[memberRecord]{}, fmt.Errorf("members: expected a JSON array: %w", err)
	}
	if err := validateRecords(records); err != nil {
		return Page[memberRecord]{}, err
	}
	return Page[memberRecord]{Items: records}, nil
}

func decodeTimeline(body []byte) (Page[messageRecord], error) {
	var page timelineRecord
	if err := json.Unmarshal(body, &page); err != nil {
		return Page[messageRecord]{}, fmt.Errorf("timeline: expected a JSON object: %w", err)
	}
	if page.Messages == nil {
		return Page[messageRecord]{}, fmt.Errorf("timeline: missing messages field")
	}
	if err := validateRecords(*page.Messages); err != nil {
		return Page[messageRecord]{}, err
	}
	return Page[messageRecord]{Items: *page.Messages, Next: page.Continuation}, nil
}

func (g groupRecord) toGroup() internal.Group {
	return internal.Group{
		ID:        g.ID,
		Name:      g.Name,
		Status:    internal.GroupStatus(g.Subscription.State),
		Thumbnail: g.Thumbnail,
	}
}

func (m memberRecord) toMember(groupID int64) internal.Member {
	return internal.Member{
		ID:         m.ID,
		GroupID:    lo.Ternary(m.GroupID != 0, m.GroupID, groupID),
		Name:       m.Name,
		Portrait:   m.Portrait,
		Thumbnail:  m.Thumbnail,
		PhoneImage: m.PhoneImage,
	}
}

func (m messageRecord) toMessage(groupID int64) (internal.Message, error) {
	createdAt, err := time.Parse(time.RFC3339, m.PublishedAt)
	if err != nil {
		return internal.Message{}, fmt.Errorf("message %d: bad published_at: %w", m.ID, err)
	}

	var updatedAt time.Time
	if m.UpdatedAt != "" {
		if updatedAt, err = time.Parse(time.RFC3339, m.UpdatedAt); err != nil {
			return internal.Message{}, fmt.Errorf("message %d: bad updated_at: %w", m.ID, err)
		}
	}

	var attachments []internal.Attachment
	if m.File != "" {
		attachments = append(attachments, internal.Attachment{URL: m.File, Kind: m.Type})
	}
	if m.Thumbnail != "" {
		attachments = append(attachments, internal.Attachment{URL: m.Thumbnail, Kind: m.Type, IsThumbnail: true})
	}

	return internal.Message{
		ID:          m.ID,
		GroupID:     lo.Ternary(m.GroupID != 0, m.GroupID, groupID),
		MemberID:    m.MemberID,
		Type:        internal.ParseMessageType(m.Type),
		Body:        lo.FromPtr(m.Text),
		Attachments: attachments,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		IsFavorite:  m.IsFavorite,
	}, nil
}
