// Package chat turns a flat relational post table into timestamped,
// metadata-prefixed knowledge chunks: threads are reconstructed per
// channel, partitioned into bounded time windows, normalized, and
// uploaded to the document store.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kbforge/kbforge/pkg/chunk"
	"github.com/kbforge/kbforge/pkg/models"
	"github.com/kbforge/kbforge/pkg/store"
	"github.com/kbforge/kbforge/pkg/textutil"
)

// Config holds the chat processor settings.
type Config struct {
	SourceName   string
	ChannelIDs   []string
	LookbackDays int
	ChunkDays    int
	FolderID     string
	TempDir      string
}

// Stats tracks what a single run produced.
type Stats struct {
	ChunksUploaded int
	WindowsSkipped int
	WriteFailures  int
	UploadFailures int
}

// Processor drives the per-window, per-channel chat pipeline.
type Processor struct {
	store  Store
	sink   store.Client
	cfg    Config
	loc    *time.Location
	logger *slog.Logger

	// now is stubbed in tests to pin the lookback window.
	now func() time.Time
}

// NewProcessor creates a chat processor. Timestamps in emitted chunks
// are rendered in loc.
func NewProcessor(st Store, sink store.Client, cfg Config, loc *time.Location, logger *slog.Logger) *Processor {
	return &Processor{
		store:  st,
		sink:   sink,
		cfg:    cfg,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// Run executes one full pass: the sink folder is cleared first, so a
// re-run replaces previous chunks rather than appending to them.
func (p *Processor) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if len(p.cfg.ChannelIDs) == 0 {
		p.logger.Warn("no channel ids configured, skipping chat processing")
		return stats, nil
	}

	store.ClearFolder(ctx, p.sink, p.cfg.FolderID, p.logger)

	channels, err := p.store.ChannelsByIDs(ctx, p.cfg.ChannelIDs)
	if err != nil {
		return stats, fmt.Errorf("failed to resolve channels: %w", err)
	}
	channelNames := make(map[string]string, len(channels))
	for _, ch := range channels {
		channelNames[ch.ID] = ch.Name
	}
	p.logger.Info("processing channels", "count", len(channelNames))

	maxTS, err := p.store.LatestPostAt(ctx)
	if err != nil {
		return stats, err
	}
	if maxTS == 0 {
		p.logger.Info("no posts found", "lookback_days", p.cfg.LookbackDays)
		return stats, nil
	}

	startTS := p.now().AddDate(0, 0, -p.cfg.LookbackDays).UnixMilli()
	p.logger.Info("processing posts",
		"from", p.formatDate(startTS), "to", p.formatDate(maxTS))

	processed := make(map[string]struct{})

	seq := Windows(startTS, maxTS, p.cfg.ChunkDays)
	for w, ok := seq.Next(); ok; w, ok = seq.Next() {
		p.logger.Info("processing window",
			"start", p.formatDate(w.Start), "end", p.formatDate(w.End))

		for _, channelID := range p.cfg.ChannelIDs {
			channelName, ok := channelNames[channelID]
			if !ok {
				p.logger.Warn("configured channel not found", "channel_id", channelID)
				continue
			}
			if err := p.processWindow(ctx, w, channelID, channelName, processed, stats); err != nil {
				return stats, err
			}
		}
	}

	p.logger.Info("chat processing finished",
		"uploaded", stats.ChunksUploaded,
		"skipped", stats.WindowsSkipped,
		"write_failures", stats.WriteFailures,
		"upload_failures", stats.UploadFailures)
	return stats, nil
}

func (p *Processor) processWindow(ctx context.Context, w models.Window, channelID, channelName string, processed map[string]struct{}, stats *Stats) error {
	roots, err := p.store.RootPostsBetween(ctx, w.Start, w.End, channelID)
	if err != nil {
		return fmt.Errorf("failed to fetch root posts for channel %s: %w", channelName, err)
	}
	if len(roots) == 0 {
		p.logger.Debug("no root posts in window", "channel", channelName)
		stats.WindowsSkipped++
		return nil
	}

	rootIDs := make([]string, len(roots))
	for i, r := range roots {
		rootIDs[i] = r.ID
	}

	related, err := p.store.PostsInThreads(ctx, rootIDs)
	if err != nil {
		return fmt.Errorf("failed to fetch thread posts for channel %s: %w", channelName, err)
	}

	userIDs := make(map[string]struct{})
	for _, m := range related {
		userIDs[m.UserID] = struct{}{}
	}
	users, err := p.store.UsersByIDs(ctx, setToSlice(userIDs))
	if err != nil {
		return fmt.Errorf("failed to resolve users for channel %s: %w", channelName, err)
	}

	threads := Reconstruct(roots, related)

	var lines []string
	for _, root := range roots {
		if _, done := processed[root.ID]; done {
			continue
		}
		processed[root.ID] = struct{}{}

		for _, m := range threads[root.ID].Posts {
			if m.Text == "" {
				continue
			}
			cleaned := textutil.Normalize(m.Text)
			if cleaned == "" {
				continue
			}
			lines = append(lines,
				fmt.Sprintf("datetime: %s, user: %s, message: %s",
					p.formatTime(m.CreateAt), p.username(users, m.UserID), cleaned))
		}
	}

	if len(lines) == 0 {
		p.logger.Info("no content generated for window", "channel", channelName)
		stats.WindowsSkipped++
		return nil
	}

	header := []chunk.Field{
		{Key: "source", Value: p.cfg.SourceName},
		{Key: "channel", Value: channelName},
		{Key: "tz", Value: p.loc.String()},
		{Key: "date_range_start", Value: p.formatDate(w.Start)},
		{Key: "date_range_end", Value: p.formatDate(w.End)},
		{Key: "body_format", Value: "kv-lines (datetime, user, message)"},
	}

	name := fmt.Sprintf("%s_posts_%s_%s_to_%s.txt",
		strings.ToLower(chunk.SanitizeName(p.cfg.SourceName)),
		chunk.SanitizeName(channelName),
		p.formatDate(w.Start), p.formatDate(w.End))
	content := chunk.Render(header, lines)

	if err := chunk.WriteFile(filepath.Join(p.cfg.TempDir, name), content); err != nil {
		p.logger.Error("failed to write chunk file", "name", name, "error", err)
		stats.WriteFailures++
		return nil
	}

	req := store.UploadRequest{
		Name:           name,
		Folder:         p.cfg.FolderID,
		Content:        content,
		AsRichDocument: true,
	}
	if err := store.UploadChunk(ctx, p.sink, req, p.logger); err != nil {
		p.logger.Error("failed to upload chunk", "name", name, "error", err)
		stats.UploadFailures++
		return nil
	}

	stats.ChunksUploaded++
	return nil
}

// username resolves a display name, degrading to a synthetic label for
// unknown authors.
func (p *Processor) username(users map[string]string, userID string) string {
	if name, ok := users[userID]; ok && name != "" {
		return name
	}
	return "user_" + userID
}

func (p *Processor) formatTime(epochMillis int64) string {
	return time.UnixMilli(epochMillis).In(p.loc).Format("2006-01-02 15:04 MST")
}

func (p *Processor) formatDate(epochMillis int64) string {
	return time.UnixMilli(epochMillis).In(p.loc).Format("2006-01-02")
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
