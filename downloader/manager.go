package downloader

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/samber/lo"

	"msgfetch/internal"
	"msgfetch/utils"
)

// SyncOptions controls a sync run
type SyncOptions struct {
	OutputDir        string
	IncludeInactive  bool
	MediaConcurrency int
	// SkipMedia exports messages without queueing their media.
	SkipMedia bool
	Quiet     bool
}

// MemberSyncResult summarises the sync of one member
type MemberSyncResult struct {
	Group         internal.Group
	Member        internal.Member
	NewMessages   int
	TotalMessages int
	MediaQueued   int
	Media         *utils.DownloadSummary
	ExportPath    string
}

// SyncManager keeps a local export of every subscribed member's messages up to date
type SyncManager struct {
	source  internal.MessageSource
	fetcher internal.MediaFetcher
	opts    SyncOptions
	files   *utils.FileOperations
	logger  *internal.SecureLogger
	now     func() time.Time
}

// NewSyncManager creates a manager reading from source and downloading media through fetcher
func NewSyncManager(source internal.MessageSource, fetcher internal.MediaFetcher, opts SyncOptions, logger *internal.SecureLogger) *SyncManager {
	if opts.OutputDir == "" {
		opts.OutputDir = "output"
	}
	if logger == nil {
		logger = internal.GetLogger()
	}
	return &SyncManager{
		source:  source,
		fetcher: fetcher,
		opts:    opts,
		files:   utils.NewFileOperations(),
		logger:  logger,
		now:     time.Now,
	}
}

// StatePath is the location of the sync state file
func (m *SyncManager) StatePath() string {
	return filepath.Join(m.opts.OutputDir, StateFileName)
}

// SyncAll syncs every subscribed group. Groups are processed one after another.
func (m *SyncManager) SyncAll(ctx context.Context) ([]MemberSyncResult, error) {
	state, err := LoadSyncState(m.StatePath())
	if err != nil {
		return nil, err
	}

	groups, err := m.source.GetGroups(ctx, m.opts.IncludeInactive)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Syncing %d groups into %s", len(groups), m.opts.OutputDir)

	var results []MemberSyncResult
	for _, g := range groups {
		groupResults, err := m.SyncGroup(ctx, state, g)
		results = append(results, groupResults...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// SyncGroup syncs every member of g. The group timeline is fetched once,
// starting after the oldest member checkpoint, and split by member.
func (m *SyncManager) SyncGroup(ctx context.Context, state *SyncState, g internal.Group) ([]MemberSyncResult, error) {
	members, err := m.source.GetMembers(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		m.logger.Info("Group %s has no members", g.Name)
		return nil, nil
	}

	sinceID := lo.Min(lo.Map(members, func(mb internal.Member, _ int) int64 {
		return state.LastMessageID(g.ID, mb.ID)
	}))

	messages, err := m.source.GetMessages(ctx, g.ID, sinceID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Group %s: %d new messages since %d", g.Name, len(messages), sinceID)

	byMember := lo.GroupBy(messages, func(msg internal.Message) int64 { return msg.MemberID })

	// every member has now seen the group timeline up to highWater
	highWater := max(sinceID, lo.Max(lo.Map(messages, func(msg internal.Message, _ int) int64 {
		return msg.ID
	})))

	results := make([]MemberSyncResult, 0, len(members))
	for _, mb := range members {
		last := state.LastMessageID(g.ID, mb.ID)
		fresh := lo.Filter(byMember[mb.ID], func(msg internal.Message, _ int) bool {
			return msg.ID > last
		})

		res, err := m.syncMember(ctx, state, g, mb, fresh, highWater)
		if err != nil {
			return results, fmt.Errorf("sync %s/%s: %w", g.Name, mb.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// MemberDir is the directory holding a member's export and media
func (m *SyncManager) MemberDir(g internal.Group, mb internal.Member) string {
	return filepath.Join(m.opts.OutputDir,
		fmt.Sprintf("%d_%s", g.ID, utils.SanitizeName(g.Name)),
		fmt.Sprintf("%d_%s", mb.ID, utils.SanitizeName(mb.Name)))
}

func (m *SyncManager) syncMember(ctx context.Context, state *SyncState, g internal.Group, mb internal.Member,
	messages []internal.Message, highWater int64) (MemberSyncResult, error) {
	dir := m.MemberDir(g, mb)
	exportPath := filepath.Join(dir, ExportFileName)

	if len(messages) == 0 {
		return m.advanceQuietMember(state, g, mb, exportPath, highWater)
	}

	export, err := LoadExport(m.files, exportPath)
	if err != nil {
		return MemberSyncResult{}, err
	}

	incoming := make([]ExportedMessage, 0, len(messages))
	var jobs []internal.MediaJob
	for _, msg := range messages {
		mediaFile := ""
		if media, ok := msg.PrimaryMedia(); ok {
			path := filepath.Join(dir, utils.MediaSubdir(msg.Type),
				strconv.FormatInt(msg.ID, 10)+"."+utils.MediaExtension(media.URL, media.Kind))
			mediaFile = m.relative(path)
			jobs = append(jobs, internal.MediaJob{
				URL:       media.URL,
				Path:      path,
				Timestamp: msg.CreatedAt.Format(time.RFC3339),
			})
		}
		incoming = append(incoming, Normalize(msg, mediaFile))
	}

	merged := MergeMessages(export.Messages, incoming)
	export.Rebuild(NewExportedMember(g, mb), merged, m.now())
	if err := m.files.WriteJSONAtomic(exportPath, export); err != nil {
		return MemberSyncResult{}, err
	}

	res := MemberSyncResult{
		Group:         g,
		Member:        mb,
		NewMessages:   len(messages),
		TotalMessages: export.TotalMessages,
		ExportPath:    exportPath,
	}

	if len(jobs) > 0 && !m.opts.SkipMedia {
		res.MediaQueued = len(jobs)
		queue := NewMediaQueue(m.fetcher, m.opts.MediaConcurrency, m.opts.Quiet, m.logger)
		mediaResults, summary, err := queue.Run(ctx, mb.Name+" ", jobs)
		res.Media = summary
		if err != nil {
			return res, err
		}

		renamed := make(map[string]string)
		for _, r := range mediaResults {
			if r.Err == nil && r.Path != "" && r.Path != r.Job.Path {
				renamed[m.relative(r.Job.Path)] = m.relative(r.Path)
			}
		}
		if export.RenameMedia(renamed) {
			if err := m.files.WriteJSONAtomic(exportPath, export); err != nil {
				return res, err
			}
		}
	}

	state.Update(g.ID, mb.ID, MemberState{
		LastMessageID: max(MaxID(merged), highWater),
		TotalMessages: export.TotalMessages,
		LastSync:      m.now().UTC(),
	})
	if err := state.Save(); err != nil {
		return res, err
	}

	m.logger.Info("%s/%s: %d new, %d total", g.Name, mb.Name, res.NewMessages, res.TotalMessages)
	return res, nil
}

// advanceQuietMember moves the checkpoint of a member without new messages
// to highWater. The export is left untouched and never created empty.
func (m *SyncManager) advanceQuietMember(state *SyncState, g internal.Group, mb internal.Member,
	exportPath string, highWater int64) (MemberSyncResult, error) {
	res := MemberSyncResult{Group: g, Member: mb}
	prev, _ := state.Get(g.ID, mb.ID)
	res.TotalMessages = prev.TotalMessages
	if m.files.FileExists(exportPath) {
		res.ExportPath = exportPath
	}

	if highWater <= prev.LastMessageID {
		return res, nil
	}

	prev.LastMessageID = highWater
	prev.LastSync = m.now().UTC()
	state.Update(g.ID, mb.ID, prev)
	if err := state.Save(); err != nil {
		return res, err
	}
	m.logger.Debug("%s/%s: no new messages, checkpoint at %d", g.Name, mb.Name, highWater)
	return res, nil
}

// relative expresses path relative to the output directory with forward slashes
func (m *SyncManager) relative(path string) string {
	rel, err := filepath.Rel(m.opts.OutputDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
