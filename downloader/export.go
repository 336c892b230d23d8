package downloader

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"msgfetch/internal"
	"msgfetch/utils"
)

// ExportFileName is the per-member export written next to its media
const ExportFileName = "messages.json"

// ExportedMessage is a message as stored in messages.json
type ExportedMessage struct {
	ID         int64                `json:"id"`
	Timestamp  string               `json:"timestamp"`
	Type       internal.MessageType `json:"type"`
	IsFavorite bool                 `json:"is_favorite"`
	Content    string               `json:"content"`
	// MediaFile is relative to the output directory, with forward slashes.
	MediaFile string `json:"media_file,omitempty"`
}

// ExportedMember describes the member an export belongs to
type ExportedMember struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	GroupID        int64  `json:"group_id"`
	Portrait       string `json:"portrait,omitempty"`
	Thumbnail      string `json:"thumbnail,omitempty"`
	PhoneImage     string `json:"phone_image,omitempty"`
	GroupThumbnail string `json:"group_thumbnail,omitempty"`
	IsActive       bool   `json:"is_active"`
}

// MemberExport is the content of messages.json
type MemberExport struct {
	ExportedAt        time.Time         `json:"exported_at"`
	Member            ExportedMember    `json:"member"`
	TotalMessages     int               `json:"total_messages"`
	MessageTypeCounts map[string]int    `json:"message_type_counts"`
	Messages          []ExportedMessage `json:"messages"`
}

// LoadExport reads an existing export. A missing file yields an empty one.
func LoadExport(files *utils.FileOperations, path string) (*MemberExport, error) {
	var export MemberExport
	if _, err := files.ReadJSON(path, &export); err != nil {
		return nil, fmt.Errorf("failed to load export: %w", err)
	}
	return &export, nil
}

// NewExportedMember builds the export header for m in g
func NewExportedMember(g internal.Group, m internal.Member) ExportedMember {
	return ExportedMember{
		ID:             m.ID,
		Name:           m.Name,
		GroupID:        g.ID,
		Portrait:       m.Portrait,
		Thumbnail:      m.Thumbnail,
		PhoneImage:     m.PhoneImage,
		GroupThumbnail: g.Thumbnail,
		IsActive:       g.Status == internal.GroupStatusActive,
	}
}

// Normalize converts a message into its export form. mediaFile may be empty.
func Normalize(msg internal.Message, mediaFile string) ExportedMessage {
	return ExportedMessage{
		ID:         msg.ID,
		Timestamp:  msg.CreatedAt.UTC().Format(time.RFC3339),
		Type:       msg.Type,
		IsFavorite: msg.IsFavorite,
		Content:    msg.Body,
		MediaFile:  mediaFile,
	}
}

// MergeMessages upserts incoming into existing by id and returns the result
// ordered by timestamp, then id. Incoming entries replace stored ones.
func MergeMessages(existing, incoming []ExportedMessage) []ExportedMessage {
	byID := lo.SliceToMap(existing, func(m ExportedMessage) (int64, ExportedMessage) {
		return m.ID, m
	})
	for _, m := range incoming {
		if m.MediaFile == "" {
			m.MediaFile = byID[m.ID].MediaFile
		}
		byID[m.ID] = m
	}

	merged := lo.Values(byID)
	slices.SortFunc(merged, func(a, b ExportedMessage) int {
		return cmp.Or(exportTime(a).Compare(exportTime(b)), cmp.Compare(a.ID, b.ID))
	})
	return merged
}

func exportTime(m ExportedMessage) time.Time {
	t, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CountTypes tallies messages per type. All four types are always present.
func CountTypes(messages []ExportedMessage) map[string]int {
	counts := map[string]int{
		string(internal.MessageTypeText):    0,
		string(internal.MessageTypePicture): 0,
		string(internal.MessageTypeVideo):   0,
		string(internal.MessageTypeVoice):   0,
	}
	for _, m := range messages {
		counts[string(m.Type)]++
	}
	return counts
}

// MaxID returns the highest message id, 0 for none
func MaxID(messages []ExportedMessage) int64 {
	if len(messages) == 0 {
		return 0
	}
	return lo.MaxBy(messages, func(a, b ExportedMessage) bool { return a.ID > b.ID }).ID
}

// Rebuild refreshes the derived fields of the export after its messages changed
func (e *MemberExport) Rebuild(member ExportedMember, messages []ExportedMessage, now time.Time) {
	e.ExportedAt = now.UTC()
	e.Member = member
	e.Messages = messages
	e.TotalMessages = len(messages)
	e.MessageTypeCounts = CountTypes(messages)
}

// RenameMedia rewrites media paths after files were moved, keyed old to new
func (e *MemberExport) RenameMedia(renamed map[string]string) bool {
	changed := false
	for i, m := range e.Messages {
		if to, ok := renamed[m.MediaFile]; ok {
			e.Messages[i].MediaFile = to
			changed = true
		}
	}
	return changed
}
