package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Upload      UploadConfig      `toml:"upload"`
	OAuth       OAuthConfig       `toml:"oauth"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
}

// CredentialsConfig contains per-platform OAuth client credentials.
type CredentialsConfig struct {
	TikTok    TikTokConfig   `toml:"tiktok"`
	YouTube   ProviderConfig `toml:"youtube"`
	Instagram ProviderConfig `toml:"instagram"`
	Facebook  ProviderConfig `toml:"facebook"`
	X         ProviderConfig `toml:"x"`
}

// TikTokConfig contains TikTok for Developers credentials. TikTok calls the client id a client key.
type TikTokConfig struct {
	ClientKey    string `toml:"client_key"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Provider returns the credentials in the shape shared by every other platform.
func (c TikTokConfig) Provider() ProviderConfig {
	return ProviderConfig{ClientID: c.ClientKey, ClientSecret: c.ClientSecret, RedirectURI: c.RedirectURI}
}

// ProviderConfig contains OAuth2 client credentials for a platform.
type ProviderConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Configured reports whether both the client id and secret are set.
func (c ProviderConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	AccountsURL string `toml:"accounts_url"`
}

// Addr returns host:port
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UploadConfig controls chunking, validation limits and status polling.
type UploadConfig struct {
	ChunkSize           int64 `toml:"chunk_size"`
	MaxFileSize         int64 `toml:"max_file_size"`
	MaxDurationSeconds  int   `toml:"max_duration_seconds"`
	PollIntervalSeconds int   `toml:"poll_interval_seconds"`
	PollAttempts        int   `toml:"poll_attempts"`
}

func (c UploadConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationSeconds) * time.Second
}

func (c UploadConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// OAuthConfig controls how long an unconsumed state stays valid.
type OAuthConfig struct {
	StateTTLMinutes int `toml:"state_ttl_minutes"`
}

func (c OAuthConfig) StateTTL() time.Duration {
	return time.Duration(c.StateTTLMinutes) * time.Minute
}

// SchedulerConfig controls the scheduled post dispatcher.
type SchedulerConfig struct {
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path as TOML, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
