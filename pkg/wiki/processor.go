package wiki

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/kbforge/kbforge/pkg/chunk"
	"github.com/kbforge/kbforge/pkg/models"
	"github.com/kbforge/kbforge/pkg/store"
	"github.com/kbforge/kbforge/pkg/textutil"
)

// ProcessorConfig holds the wiki processor settings.
type ProcessorConfig struct {
	SourceName string
	FolderID   string
	TempDir    string
}

// Stats tracks what a single wiki run produced.
type Stats struct {
	ItemsListed    int
	ItemsSkipped   int
	GroupsUploaded int
	WriteFailures  int
	UploadFailures int
}

// Processor pages through the wiki content tree, fetches item details,
// groups items by their second-level ancestor, and uploads one combined
// chunk per group.
type Processor struct {
	client  *Client
	sink    store.Client
	grouper *Grouper
	cfg     ProcessorConfig
	logger  *slog.Logger
}

// NewProcessor creates a wiki processor sharing the client's excluded
// id set with the grouper.
func NewProcessor(client *Client, sink store.Client, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	return &Processor{
		client:  client,
		sink:    sink,
		grouper: NewGrouper(client.Excluded()),
		cfg:     cfg,
		logger:  logger,
	}
}

// Run executes one full wiki pass. Item caches live for exactly one
// run; the sink folder is cleared first so re-runs replace output.
func (p *Processor) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	store.ClearFolder(ctx, p.sink, p.cfg.FolderID, p.logger)

	items, err := p.client.ListAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list wiki content tree: %w", err)
	}
	stats.ItemsListed = len(items)

	// Per-run caches, passed explicitly to keep their lifetime obvious.
	details := make(map[string]models.WikiDetail, len(items))
	texts := make(map[string]string, len(items))

	for _, item := range items {
		if item.Archived {
			p.logger.Debug("skipping archived item", "item", item.ID, "title", item.Title)
			stats.ItemsSkipped++
			continue
		}

		detail, err := p.client.GetDetails(ctx, item.ID)
		if err != nil {
			return stats, err
		}
		if detail.ID == "" && len(detail.Breadcrumbs) == 0 {
			stats.ItemsSkipped++
			continue
		}
		details[item.ID] = detail
	}

	groups := p.grouper.Group(items, details)
	p.logger.Info("grouped wiki items", "groups", len(groups), "items", len(details))

	for _, key := range sortedKeys(groups) {
		p.emitGroup(ctx, key, groups[key], details, texts, stats)
	}

	p.logger.Info("wiki processing finished",
		"listed", stats.ItemsListed,
		"skipped", stats.ItemsSkipped,
		"uploaded", stats.GroupsUploaded,
		"write_failures", stats.WriteFailures,
		"upload_failures", stats.UploadFailures)
	return stats, nil
}

// emitGroup renders and uploads one group chunk. All failures past the
// detail fetch are soft: they cost this group only.
func (p *Processor) emitGroup(ctx context.Context, key string, itemIDs []string, details map[string]models.WikiDetail, texts map[string]string, stats *Stats) {
	title := p.groupTitle(ctx, key, details)

	var lines []string
	for _, id := range itemIDs {
		if id == key {
			// Only strict descendants contribute content.
			continue
		}
		text := p.itemText(id, details, texts)
		if text == "" {
			continue
		}
		itemTitle := details[id].Title
		if text == textutil.Normalize(itemTitle) {
			// Body-less items fall back to their title; don't print
			// it twice.
			lines = append(lines, itemTitle, "")
			continue
		}
		lines = append(lines, itemTitle, text, "")
	}

	if len(lines) == 0 {
		p.logger.Info("no content generated for group", "group", title)
		return
	}

	header := []chunk.Field{
		{Key: "source", Value: p.cfg.SourceName},
		{Key: "category", Value: title},
		{Key: "items", Value: strconv.Itoa(len(itemIDs))},
		{Key: "data_format", Value: "plain_text"},
	}

	name := fmt.Sprintf("wiki_%s.txt", chunk.SanitizeName(title))
	content := chunk.Render(header, lines)

	if err := chunk.WriteFile(filepath.Join(p.cfg.TempDir, name), content); err != nil {
		p.logger.Error("failed to write group chunk", "group", title, "error", err)
		stats.WriteFailures++
		return
	}

	req := store.UploadRequest{
		Name:           name,
		Folder:         p.cfg.FolderID,
		Content:        content,
		AsRichDocument: true,
	}
	if err := store.UploadChunk(ctx, p.sink, req, p.logger); err != nil {
		p.logger.Error("failed to upload group chunk", "group", title, "error", err)
		stats.UploadFailures++
		return
	}

	stats.GroupsUploaded++
}

// groupTitle resolves the display title of the group-key item, fetching
// it lazily when it was not part of the listing. The raw id is the
// fallback.
func (p *Processor) groupTitle(ctx context.Context, key string, details map[string]models.WikiDetail) string {
	if d, ok := details[key]; ok && d.Title != "" {
		return d.Title
	}

	detail, err := p.client.GetDetails(ctx, key)
	if err == nil && detail.Title != "" {
		details[key] = detail
		return detail.Title
	}

	return key
}

// itemText returns the cached normalized text for an item, computing it
// on first use.
func (p *Processor) itemText(id string, details map[string]models.WikiDetail, texts map[string]string) string {
	if text, ok := texts[id]; ok {
		return text
	}

	detail, ok := details[id]
	if !ok {
		return ""
	}
	text := CleanText(detail)
	texts[id] = text
	return text
}

func sortedKeys(groups map[string][]string) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
