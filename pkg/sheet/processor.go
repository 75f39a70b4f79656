package sheet

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/kbforge/kbforge/pkg/chunk"
	"github.com/kbforge/kbforge/pkg/store"
)

const chunkFileName = "people_knowledge.txt"

// Config holds the sheet processor settings.
type Config struct {
	SourceName string
	FilePath   string
	// SkipRows is the number of leading noise rows before the header
	// row.
	SkipRows int
	FolderID string
	TempDir  string
}

// Stats tracks what a single sheet run produced.
type Stats struct {
	RowsRead       int
	PeopleParsed   int
	ChunksUploaded int
	WriteFailures  int
	UploadFailures int
}

// Processor reads the roster export, extracts the people-lifecycle
// knowledge, and uploads it as one chunk.
type Processor struct {
	sink   store.Client
	cfg    Config
	logger *slog.Logger
}

// NewProcessor creates a sheet processor.
func NewProcessor(sink store.Client, cfg Config, logger *slog.Logger) *Processor {
	return &Processor{sink: sink, cfg: cfg, logger: logger}
}

// Run executes one full sheet pass. The sink folder is cleared first so
// re-runs replace output.
func (p *Processor) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if p.cfg.FilePath == "" {
		p.logger.Warn("sheet file not configured, skipping sheet processing")
		return stats, nil
	}

	store.ClearFolder(ctx, p.sink, p.cfg.FolderID, p.logger)

	grid, err := ReadGridFile(p.cfg.FilePath)
	if err != nil {
		return stats, fmt.Errorf("failed to read sheet %s: %w", p.cfg.FilePath, err)
	}
	stats.RowsRead = len(grid)

	if len(grid) <= p.cfg.SkipRows+1 {
		p.logger.Warn("sheet has no data rows after the header",
			"rows", len(grid), "skip_rows", p.cfg.SkipRows)
		return stats, nil
	}

	people := ParsePeople(grid[p.cfg.SkipRows:])
	stats.PeopleParsed = len(people)

	lines := KnowledgeLines(people)
	if len(lines) == 0 {
		p.logger.Info("no roster knowledge generated, nothing to upload")
		return stats, nil
	}

	header := []chunk.Field{
		{Key: "source", Value: p.cfg.SourceName},
		{Key: "category", Value: "People Lifecycle"},
		{Key: "people", Value: strconv.Itoa(len(people))},
		{Key: "data_format", Value: "structured_bulleted_text"},
	}
	content := chunk.Render(header, lines)

	if err := chunk.WriteFile(filepath.Join(p.cfg.TempDir, chunkFileName), content); err != nil {
		p.logger.Error("failed to write roster chunk", "error", err)
		stats.WriteFailures++
		return stats, nil
	}

	req := store.UploadRequest{
		Name:           chunkFileName,
		Folder:         p.cfg.FolderID,
		Content:        content,
		AsRichDocument: true,
	}
	if err := store.UploadChunk(ctx, p.sink, req, p.logger); err != nil {
		p.logger.Error("failed to upload roster chunk", "error", err)
		stats.UploadFailures++
		return stats, nil
	}
	stats.ChunksUploaded++

	p.logger.Info("sheet processing finished",
		"rows", stats.RowsRead,
		"people", stats.PeopleParsed,
		"uploaded", stats.ChunksUploaded)
	return stats, nil
}
