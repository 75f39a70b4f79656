// Package config loads the pipeline configuration from environment
// variables. An optional .env file is loaded by the CLI before parsing.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the application configuration.
type Config struct {
	General  GeneralConfig
	Chat     ChatConfig
	Wiki     WikiConfig
	Sheet    SheetConfig
	Weaviate WeaviateConfig
}

// GeneralConfig holds settings shared by all processors.
type GeneralConfig struct {
	// Timezone is the IANA zone used to render message timestamps.
	Timezone     string `env:"TIMEZONE" envDefault:"Europe/Moscow"`
	LookbackDays int    `env:"LOOKBACK_DAYS" envDefault:"90"`
	ChunkDays    int    `env:"CHUNK_DAYS" envDefault:"90"`
	TempDir      string `env:"TEMP_DIR" envDefault:"./tmp"`
}

// ChatConfig holds the chat source settings.
type ChatConfig struct {
	// DSN is the MySQL connection string for the post store.
	DSN        string   `env:"CHAT_DB_DSN"`
	ChannelIDs []string `env:"CHAT_CHANNEL_IDS" envSeparator:","`
	FolderID   string   `env:"CHAT_FOLDER_ID"`
}

// WikiConfig holds the wiki source settings.
type WikiConfig struct {
	BaseURL      string        `env:"WIKI_BASE_URL"`
	AccountSlug  string        `env:"WIKI_ACCOUNT_SLUG"`
	SpaceID      string        `env:"WIKI_SPACE_ID"`
	ClientID     string        `env:"WIKI_CLIENT_ID"`
	ClientSecret string        `env:"WIKI_CLIENT_SECRET"`
	AccessToken  string        `env:"WIKI_ACCESS_TOKEN"`
	RefreshToken string        `env:"WIKI_REFRESH_TOKEN"`
	ExcludedIDs  []string      `env:"WIKI_EXCLUDED_IDS" envSeparator:","`
	FolderID     string        `env:"WIKI_FOLDER_ID"`
	Throttle     time.Duration `env:"WIKI_THROTTLE" envDefault:"300ms"`
	TokenDB      string        `env:"WIKI_TOKEN_DB" envDefault:"./tokens"`
}

// SheetConfig holds the roster sheet settings.
type SheetConfig struct {
	FilePath string `env:"SHEET_FILE"`
	SkipRows int    `env:"SHEET_SKIP_ROWS" envDefault:"1"`
	FolderID string `env:"SHEET_FOLDER_ID"`
}

// WeaviateConfig holds the document sink settings.
type WeaviateConfig struct {
	Scheme string `env:"WEAVIATE_SCHEME" envDefault:"http"`
	Host   string `env:"WEAVIATE_HOST" envDefault:"localhost:8080"`
	APIKey string `env:"WEAVIATE_API_KEY"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	for _, section := range []any{
		&cfg.General, &cfg.Chat, &cfg.Wiki, &cfg.Sheet, &cfg.Weaviate,
	} {
		if err := env.Parse(section); err != nil {
			return nil, fmt.Errorf("failed to parse environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field and range constraints.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.General.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.General.Timezone, err)
	}
	if c.General.LookbackDays < 1 {
		return fmt.Errorf("LOOKBACK_DAYS must be positive, got %d", c.General.LookbackDays)
	}
	if c.General.ChunkDays < 1 {
		return fmt.Errorf("CHUNK_DAYS must be positive, got %d", c.General.ChunkDays)
	}

	if c.Weaviate.Host == "" {
		return fmt.Errorf("WEAVIATE_HOST is required")
	}
	if c.Weaviate.Scheme != "http" && c.Weaviate.Scheme != "https" {
		return fmt.Errorf("WEAVIATE_SCHEME must be http or https")
	}

	if len(c.Chat.ChannelIDs) > 0 && c.Chat.DSN == "" {
		return fmt.Errorf("CHAT_DB_DSN is required when CHAT_CHANNEL_IDS is set")
	}
	if c.Wiki.BaseURL != "" && c.Wiki.SpaceID == "" {
		return fmt.Errorf("WIKI_SPACE_ID is required when WIKI_BASE_URL is set")
	}
	if c.Sheet.SkipRows < 0 {
		return fmt.Errorf("SHEET_SKIP_ROWS cannot be negative, got %d", c.Sheet.SkipRows)
	}

	return nil
}

// Location resolves the configured timezone. Validate guarantees it
// parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.General.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
