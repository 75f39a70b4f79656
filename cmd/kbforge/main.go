package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/kbforge/kbforge/internal/config"
	"github.com/kbforge/kbforge/pkg/chat"
	"github.com/kbforge/kbforge/pkg/sheet"
	"github.com/kbforge/kbforge/pkg/store"
	"github.com/kbforge/kbforge/pkg/wiki"
)

func main() {
	app := &cli.App{
		Name:  "kbforge",
		Usage: "Assemble a plain-text knowledge base from chat, wiki and roster sources",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file with configuration overrides",
				Value: ".env",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "chat",
				Usage:  "Process the chat post store into time-windowed chunks",
				Action: chatCommand,
			},
			{
				Name:   "wiki",
				Usage:  "Process the wiki content tree into per-section chunks",
				Action: wikiCommand,
			},
			{
				Name:   "sheet",
				Usage:  "Process the people roster sheet into one knowledge chunk",
				Action: sheetCommand,
			},
			{
				Name:   "all",
				Usage:  "Run every processor in sequence",
				Action: allCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	// A missing .env file is fine; the environment may be complete
	// already.
	if path := c.String("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", c.String("log-level"))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// prepareWorkspace resets the temp dir so a run never mixes its output
// with a previous one.
func prepareWorkspace(base string) error {
	if err := os.RemoveAll(base); err != nil {
		return fmt.Errorf("failed to clear temp dir %s: %w", base, err)
	}
	for _, sub := range []string{"chat", "wiki", "sheet"} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0o755); err != nil {
			return fmt.Errorf("failed to create temp dir: %w", err)
		}
	}
	return nil
}

func newSink(cfg *config.Config) (*store.WeaviateClient, error) {
	sink, err := store.NewWeaviateClient(cfg.Weaviate.Scheme, cfg.Weaviate.Host, cfg.Weaviate.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create document store client: %w", err)
	}
	if err := sink.Initialize(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}
	return sink, nil
}

func loadEnvironment() (*config.Config, *store.WeaviateClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := prepareWorkspace(cfg.General.TempDir); err != nil {
		return nil, nil, err
	}
	sink, err := newSink(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, sink, nil
}

func runChat(ctx context.Context, cfg *config.Config, sink store.Client) error {
	if len(cfg.Chat.ChannelIDs) == 0 {
		slog.Warn("no chat channels configured, skipping chat source")
		return nil
	}

	st, err := chat.OpenSQLStore(ctx, cfg.Chat.DSN)
	if err != nil {
		return fmt.Errorf("failed to open post store: %w", err)
	}
	defer st.Close()

	p := chat.NewProcessor(st, sink, chat.Config{
		SourceName:   "Mattermost",
		ChannelIDs:   cfg.Chat.ChannelIDs,
		LookbackDays: cfg.General.LookbackDays,
		ChunkDays:    cfg.General.ChunkDays,
		FolderID:     cfg.Chat.FolderID,
		TempDir:      filepath.Join(cfg.General.TempDir, "chat"),
	}, cfg.Location(), slog.Default())

	_, err = p.Run(ctx)
	return err
}

func runWiki(ctx context.Context, cfg *config.Config, sink store.Client) error {
	if cfg.Wiki.BaseURL == "" {
		slog.Warn("wiki base URL not configured, skipping wiki source")
		return nil
	}

	tokenStore, err := wiki.OpenTokenStore(cfg.Wiki.TokenDB, false)
	if err != nil {
		return err
	}
	defer tokenStore.Close()

	client, err := wiki.NewClient(wiki.ClientConfig{
		BaseURL:      cfg.Wiki.BaseURL,
		AccountSlug:  cfg.Wiki.AccountSlug,
		SpaceID:      cfg.Wiki.SpaceID,
		ClientID:     cfg.Wiki.ClientID,
		ClientSecret: cfg.Wiki.ClientSecret,
		AccessToken:  cfg.Wiki.AccessToken,
		RefreshToken: cfg.Wiki.RefreshToken,
		ExcludedIDs:  cfg.Wiki.ExcludedIDs,
		Throttle:     cfg.Wiki.Throttle,
	}, tokenStore, slog.Default())
	if err != nil {
		return err
	}

	p := wiki.NewProcessor(client, sink, wiki.ProcessorConfig{
		SourceName: "Wiki",
		FolderID:   cfg.Wiki.FolderID,
		TempDir:    filepath.Join(cfg.General.TempDir, "wiki"),
	}, slog.Default())

	_, err = p.Run(ctx)
	return err
}

func runSheet(ctx context.Context, cfg *config.Config, sink store.Client) error {
	p := sheet.NewProcessor(sink, sheet.Config{
		SourceName: "HR Sheet",
		FilePath:   cfg.Sheet.FilePath,
		SkipRows:   cfg.Sheet.SkipRows,
		FolderID:   cfg.Sheet.FolderID,
		TempDir:    filepath.Join(cfg.General.TempDir, "sheet"),
	}, slog.Default())

	_, err := p.Run(ctx)
	return err
}

func chatCommand(c *cli.Context) error {
	cfg, sink, err := loadEnvironment()
	if err != nil {
		return err
	}
	return runChat(c.Context, cfg, sink)
}

func wikiCommand(c *cli.Context) error {
	cfg, sink, err := loadEnvironment()
	if err != nil {
		return err
	}
	return runWiki(c.Context, cfg, sink)
}

func sheetCommand(c *cli.Context) error {
	cfg, sink, err := loadEnvironment()
	if err != nil {
		return err
	}
	return runSheet(c.Context, cfg, sink)
}

func allCommand(c *cli.Context) error {
	cfg, sink, err := loadEnvironment()
	if err != nil {
		return err
	}

	for _, run := range []func(context.Context, *config.Config, store.Client) error{
		runChat, runWiki, runSheet,
	} {
		if err := run(c.Context, cfg, sink); err != nil {
			return err
		}
	}
	return nil
}
