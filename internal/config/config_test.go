package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.General.Timezone != "Europe/Moscow" {
		t.Errorf("timezone default = %q", cfg.General.Timezone)
	}
	if cfg.General.LookbackDays != 90 || cfg.General.ChunkDays != 90 {
		t.Errorf("unexpected window defaults: %+v", cfg.General)
	}
	if cfg.Wiki.Throttle != 300*time.Millisecond {
		t.Errorf("throttle default = %v", cfg.Wiki.Throttle)
	}
	if cfg.Sheet.SkipRows != 1 {
		t.Errorf("skip rows default = %d", cfg.Sheet.SkipRows)
	}
	if cfg.Weaviate.Scheme != "http" {
		t.Errorf("weaviate scheme default = %q", cfg.Weaviate.Scheme)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("CHAT_DB_DSN", "user:pass@tcp(localhost:3306)/mattermost")
	t.Setenv("CHAT_CHANNEL_IDS", "ch1,ch2,ch3")
	t.Setenv("WIKI_THROTTLE", "50ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.Chat.ChannelIDs) != 3 || cfg.Chat.ChannelIDs[1] != "ch2" {
		t.Errorf("channel ids = %v", cfg.Chat.ChannelIDs)
	}
	if cfg.Wiki.Throttle != 50*time.Millisecond {
		t.Errorf("throttle = %v", cfg.Wiki.Throttle)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("location = %v", cfg.Location())
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			General: GeneralConfig{
				Timezone:     "UTC",
				LookbackDays: 90,
				ChunkDays:    90,
			},
			Weaviate: WeaviateConfig{Scheme: "http", Host: "localhost:8080"},
			Sheet:    SheetConfig{SkipRows: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad timezone", func(c *Config) { c.General.Timezone = "Mars/Olympus" }, true},
		{"zero lookback", func(c *Config) { c.General.LookbackDays = 0 }, true},
		{"zero chunk days", func(c *Config) { c.General.ChunkDays = 0 }, true},
		{"missing weaviate host", func(c *Config) { c.Weaviate.Host = "" }, true},
		{"bad weaviate scheme", func(c *Config) { c.Weaviate.Scheme = "ftp" }, true},
		{"channels without dsn", func(c *Config) { c.Chat.ChannelIDs = []string{"ch1"} }, true},
		{"wiki url without space", func(c *Config) { c.Wiki.BaseURL = "https://wiki.example" }, true},
		{"negative skip rows", func(c *Config) { c.Sheet.SkipRows = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
