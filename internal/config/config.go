package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir     string `toml:"log_dir"`
	DataDir    string `toml:"data_dir"`
	CatalogDir string `toml:"catalog_dir"`
}

// Server contains the HTTP surface configuration.
type Server struct {
	Bind        string `toml:"bind"`
	APIToken    string `toml:"api_token"`
	MaxUploadMB int    `toml:"max_upload_mb"`
}

// Telegram contains the chat-relay (Telegram Bot API) configuration.
type Telegram struct {
	BotToken       string `toml:"bot_token"`
	ChatID         string `toml:"chat_id"`
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
	WebhookSecret  string `toml:"webhook_secret"`
	WebhookURL     string `toml:"webhook_url"`
	// WebhookWorkers process acknowledged updates in the background.
	WebhookWorkers   int `toml:"webhook_workers"`
	WebhookQueueSize int `toml:"webhook_queue_size"`
}

// Catalog contains configuration for resolving catalog references to image bytes.
type Catalog struct {
	FetchTimeout int `toml:"fetch_timeout"`
	MaxMB        int `toml:"max_mb"`
	// AllowedHosts restricts remote catalog fetches to these hosts. When
	// empty, any public host is allowed and private addresses are refused.
	AllowedHosts []string `toml:"allowed_hosts"`
}

// Correlation contains configuration for the volatile correlation store.
type Correlation struct {
	// TTLHours bounds how long a resolved entry stays queryable.
	TTLHours int `toml:"ttl_hours"`
	// SweepIntervalSeconds controls how often expired entries are evicted.
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	// OnDuplicate is "overwrite" (last reply wins) or "keep_first".
	OnDuplicate string `toml:"on_duplicate"`
}

// Dispatch contains configuration for the outbound dispatcher and its enrichment workers.
type Dispatch struct {
	Workers              int    `toml:"workers"`
	QueueSize            int    `toml:"queue_size"`
	DefaultRequesterName string `toml:"default_requester_name"`
	EnrichTimeout        int    `toml:"enrich_timeout"`
}

// Ledger contains configuration for the sqlite dispatch ledger.
type Ledger struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Events contains configuration for publishing lifecycle events to RabbitMQ.
type Events struct {
	AMQPURL        string `toml:"amqp_url"`
	Exchange       string `toml:"exchange"`
	Producer       string `toml:"producer"`
	ConnectTimeout int    `toml:"connect_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tryonrelay.
//
// Configuration sections by subsystem:
//   - Paths: log, data and catalog directories
//   - Server: HTTP bind address, admin token, upload size cap
//   - Telegram: bot token, operator chat and webhook settings
//   - Catalog: fetch timeout and size cap for catalog images
//   - Correlation: entry TTL, sweep interval and duplicate-reply policy
//   - Dispatch: enrichment worker pool sizing
//   - Ledger: sqlite record of dispatched requests and seen webhook updates
//   - Events: optional RabbitMQ lifecycle events
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Server      Server      `toml:"server"`
	Telegram    Telegram    `toml:"telegram"`
	Catalog     Catalog     `toml:"catalog"`
	Correlation Correlation `toml:"correlation"`
	Dispatch    Dispatch    `toml:"dispatch"`
	Ledger      Ledger      `toml:"ledger"`
	Events      Events      `toml:"events"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tryonrelay.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Ledger.Enabled {
		if err := os.MkdirAll(filepath.Dir(c.Ledger.Path), 0o755); err != nil {
			return fmt.Errorf("create ledger directory: %w", err)
		}
	}
	return nil
}

// TelegramTimeout returns the per-request timeout for chat-relay calls.
func (c *Config) TelegramTimeout() time.Duration {
	return time.Duration(c.Telegram.RequestTimeout) * time.Second
}

// CatalogFetchTimeout returns the bounded timeout for remote catalog fetches.
func (c *Config) CatalogFetchTimeout() time.Duration {
	return time.Duration(c.Catalog.FetchTimeout) * time.Second
}

// CatalogMaxBytes returns the maximum accepted catalog image size.
func (c *Config) CatalogMaxBytes() int64 {
	return int64(c.Catalog.MaxMB) << 20
}

// MaxUploadBytes returns the maximum accepted multipart upload size.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// CorrelationTTL returns how long a resolved correlation entry is retained.
func (c *Config) CorrelationTTL() time.Duration {
	return time.Duration(c.Correlation.TTLHours) * time.Hour
}

// CorrelationSweepInterval returns the eviction sweep period.
func (c *Config) CorrelationSweepInterval() time.Duration {
	return time.Duration(c.Correlation.SweepIntervalSeconds) * time.Second
}

// EnrichTimeout bounds a single enrichment job (fetch plus secondary send).
func (c *Config) EnrichTimeout() time.Duration {
	return time.Duration(c.Dispatch.EnrichTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// NumericChatID returns the operator chat id when it is numeric. Channel
// usernames ("@name") report false.
func (c *Config) NumericChatID() (int64, bool) {
	id, err := strconv.ParseInt(c.Telegram.ChatID, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
