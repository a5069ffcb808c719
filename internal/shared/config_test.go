package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./postx.db" {
			t.Errorf("expected database path ./postx.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Upload.ChunkSize != 10*1024*1024 {
			t.Errorf("expected 10MB chunk size, got %d", config.Upload.ChunkSize)
		}

		if config.Upload.MaxFileSize != 4*1024*1024*1024 {
			t.Errorf("expected 4GB max file size, got %d", config.Upload.MaxFileSize)
		}

		if config.Upload.MaxDuration() != 300*time.Second {
			t.Errorf("expected 300s max duration, got %v", config.Upload.MaxDuration())
		}

		if config.Upload.PollInterval() != 2*time.Second || config.Upload.PollAttempts != 30 {
			t.Errorf("unexpected poll settings %v x %d", config.Upload.PollInterval(), config.Upload.PollAttempts)
		}

		if config.OAuth.StateTTL() != 10*time.Minute {
			t.Errorf("expected 10m state ttl, got %v", config.OAuth.StateTTL())
		}

		if config.Credentials.TikTok.ClientKey != "your_tiktok_client_key" {
			t.Errorf("expected tiktok client_key your_tiktok_client_key, got %s", config.Credentials.TikTok.ClientKey)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[server]
host = "0.0.0.0"
port = 8080

[credentials.tiktok]
client_key = "test_key"
client_secret = "test_secret"
redirect_uri = "http://localhost:8080/callback/tiktok"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Addr() != "0.0.0.0:8080" {
			t.Errorf("expected addr 0.0.0.0:8080, got %s", config.Server.Addr())
		}

		if !config.Credentials.TikTok.Provider().Configured() {
			t.Error("expected tiktok credentials to be configured")
		}

		if config.Upload.PollAttempts != 30 {
			t.Errorf("expected unset values to keep defaults, got poll attempts %d", config.Upload.PollAttempts)
		}
	})

	t.Run("SaveConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		config := DefaultConfig()
		config.Credentials.YouTube.ClientID = "saved-id"

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load saved config: %v", err)
		}
		if loaded.Credentials.YouTube.ClientID != "saved-id" {
			t.Errorf("expected saved client id, got %s", loaded.Credentials.YouTube.ClientID)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}
