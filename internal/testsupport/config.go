package testsupport

import (
	"path/filepath"
	"testing"

	"tryonrelay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// TestBotToken is the bot token used by generated configs. Its numeric prefix
// is the bot id reported by telegram.BotIDFromToken.
const TestBotToken = "424242:TEST-TOKEN"

// TestChatID is the operator chat used by generated configs.
const TestChatID = "-1001"

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.CatalogDir = filepath.Join(base, "public")
	cfgVal.Ledger.Path = filepath.Join(base, "data", "ledger.db")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Telegram.BotToken = TestBotToken
	cfgVal.Telegram.ChatID = TestChatID
	cfgVal.Dispatch.Workers = 2
	cfgVal.Dispatch.QueueSize = 8
	cfgVal.Dispatch.EnrichTimeout = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTelegramBaseURL points the chat relay at a fake Bot API server.
func WithTelegramBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Telegram.BaseURL = url
	}
}

// WithWebhookSecret sets the secret expected in webhook deliveries.
func WithWebhookSecret(secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Telegram.WebhookSecret = secret
	}
}

// WithAPIToken protects the admin API with a bearer token.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.APIToken = token
	}
}

// WithoutLedger disables the sqlite ledger.
func WithoutLedger() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Enabled = false
	}
}

// WithCatalogImage writes a catalog image of size bytes under the catalog dir.
func WithCatalogImage(rel string, size int64) ConfigOption {
	return func(b *configBuilder) {
		WriteFile(b.t, filepath.Join(b.cfg.Paths.CatalogDir, filepath.FromSlash(rel)), size)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
