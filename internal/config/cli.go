package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// CLIConfig is the competeiq command's configuration file.
type CLIConfig struct {
	APIBaseURL        string   `toml:"api_base_url"`
	PollInterval      Duration `toml:"poll_interval"`
	DisplayDelay      Duration `toml:"display_delay"`
	SessionDir        string   `toml:"session_dir"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	IncludeWeakness   bool     `toml:"include_weakness_analysis"`

	// SessionStore is "file" or "redis". The redis store shares the local
	// session between machines that reach the same Redis.
	SessionStore string `toml:"session_store"`
	RedisURL     string `toml:"redis_url"`
}

// Session store kinds.
const (
	SessionStoreFile  = "file"
	SessionStoreRedis = "redis"
)

// Credentials is the stored login of the CLI user.
type Credentials struct {
	Token  string `toml:"token"`
	UserID string `toml:"user_id"`
	Email  string `toml:"email"`
	Name   string `toml:"name"`
}

// Duration reads "2s"-style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultCLIDir returns ~/.competeiq.
func DefaultCLIDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".competeiq"
	}
	return filepath.Join(home, ".competeiq")
}

func DefaultCLIConfig(dir string) CLIConfig {
	return CLIConfig{
		APIBaseURL:        "http://localhost:7000",
		PollInterval:      Duration{2 * time.Second},
		DisplayDelay:      Duration{2 * time.Second},
		SessionDir:        dir,
		RequestsPerSecond: 5,
		SessionStore:      SessionStoreFile,
		RedisURL:          "redis://localhost:6379/0",
	}
}

// LoadCLI reads <dir>/config.toml over the defaults. A missing file is not
// an error.
func LoadCLI(dir string) (CLIConfig, error) {
	cfg := DefaultCLIConfig(dir)
	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = dir
	}
	switch cfg.SessionStore {
	case "":
		cfg.SessionStore = SessionStoreFile
	case SessionStoreFile, SessionStoreRedis:
	default:
		return cfg, fmt.Errorf("invalid session_store %q, want %q or %q", cfg.SessionStore, SessionStoreFile, SessionStoreRedis)
	}
	return cfg, nil
}

func LoadCredentials(dir string) (*Credentials, error) {
	data, err := os.ReadFile(filepath.Join(dir, "credentials.toml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	var creds Credentials
	if err := toml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return &creds, nil
}

func SaveCredentials(dir string, creds Credentials) error {
	data, err := toml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "credentials.toml"), data, 0o600)
}

func ClearCredentials(dir string) error {
	err := os.Remove(filepath.Join(dir, "credentials.toml"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
