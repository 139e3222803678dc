package config

const (
	defaultConfigPath           = "~/.config/tryonrelay/config.toml"
	defaultLogDir               = "~/.local/share/tryonrelay/logs"
	defaultDataDir              = "~/.local/share/tryonrelay"
	defaultCatalogDir           = "public"
	defaultLedgerPath           = "~/.local/share/tryonrelay/ledger.db"
	defaultBind                 = "0.0.0.0:8080"
	defaultMaxUploadMB          = 10
	defaultTelegramBaseURL      = "https://api.telegram.org"
	defaultTelegramTimeout      = 30
	defaultWebhookWorkers       = 2
	defaultWebhookQueueSize     = 32
	defaultCatalogFetchTimeout  = 10
	defaultCatalogMaxMB         = 10
	defaultCorrelationTTLHours  = 72
	defaultCorrelationSweep     = 300
	defaultDuplicatePolicy      = "overwrite"
	defaultDispatchWorkers      = 4
	defaultDispatchQueueSize    = 64
	defaultRequesterName        = "Cliente"
	defaultEnrichTimeout        = 60
	defaultEventsExchange       = "tryonrelay.events"
	defaultEventsProducer       = "tryonrelay"
	defaultEventsConnectTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:     defaultLogDir,
			DataDir:    defaultDataDir,
			CatalogDir: defaultCatalogDir,
		},
		Server: Server{
			Bind:        defaultBind,
			MaxUploadMB: defaultMaxUploadMB,
		},
		Telegram: Telegram{
			BaseURL:          defaultTelegramBaseURL,
			RequestTimeout:   defaultTelegramTimeout,
			WebhookWorkers:   defaultWebhookWorkers,
			WebhookQueueSize: defaultWebhookQueueSize,
		},
		Catalog: Catalog{
			FetchTimeout: defaultCatalogFetchTimeout,
			MaxMB:        defaultCatalogMaxMB,
		},
		Correlation: Correlation{
			TTLHours:             defaultCorrelationTTLHours,
			SweepIntervalSeconds: defaultCorrelationSweep,
			OnDuplicate:          defaultDuplicatePolicy,
		},
		Dispatch: Dispatch{
			Workers:              defaultDispatchWorkers,
			QueueSize:            defaultDispatchQueueSize,
			DefaultRequesterName: defaultRequesterName,
			EnrichTimeout:        defaultEnrichTimeout,
		},
		Ledger: Ledger{
			Enabled: true,
			Path:    defaultLedgerPath,
		},
		Events: Events{
			Exchange:       defaultEventsExchange,
			Producer:       defaultEventsProducer,
			ConnectTimeout: defaultEventsConnectTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
