package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeTelegram()
	c.normalizeCorrelation()
	c.normalizeDispatch()
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	c.normalizeEvents()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CatalogDir) == "" {
		c.Paths.CatalogDir = defaultCatalogDir
	}
	if c.Paths.CatalogDir, err = expandPath(c.Paths.CatalogDir); err != nil {
		return fmt.Errorf("paths.catalog_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if port, ok := lookupTrimmed("PORT"); ok {
		c.Server.Bind = "0.0.0.0:" + port
	}
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	if token, ok := lookupTrimmed("TRYONRELAY_API_TOKEN"); ok {
		c.Server.APIToken = token
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
}

func (c *Config) normalizeTelegram() {
	if token, ok := lookupTrimmed("TELEGRAM_TOKEN"); ok {
		c.Telegram.BotToken = token
	}
	if chatID, ok := lookupTrimmed("CHAT_ID"); ok {
		c.Telegram.ChatID = chatID
	}
	if secret, ok := lookupTrimmed("TELEGRAM_WEBHOOK_SECRET"); ok {
		c.Telegram.WebhookSecret = secret
	}
	c.Telegram.BotToken = strings.TrimSpace(c.Telegram.BotToken)
	c.Telegram.ChatID = strings.TrimSpace(c.Telegram.ChatID)
	c.Telegram.WebhookSecret = strings.TrimSpace(c.Telegram.WebhookSecret)
	c.Telegram.WebhookURL = strings.TrimSpace(c.Telegram.WebhookURL)
	c.Telegram.BaseURL = strings.TrimRight(strings.TrimSpace(c.Telegram.BaseURL), "/")
	if c.Telegram.BaseURL == "" {
		c.Telegram.BaseURL = defaultTelegramBaseURL
	}
	if c.Telegram.RequestTimeout <= 0 {
		c.Telegram.RequestTimeout = defaultTelegramTimeout
	}
	if c.Telegram.WebhookWorkers <= 0 {
		c.Telegram.WebhookWorkers = defaultWebhookWorkers
	}
	if c.Telegram.WebhookQueueSize <= 0 {
		c.Telegram.WebhookQueueSize = defaultWebhookQueueSize
	}
	if c.Catalog.FetchTimeout <= 0 {
		c.Catalog.FetchTimeout = defaultCatalogFetchTimeout
	}
	if c.Catalog.MaxMB <= 0 {
		c.Catalog.MaxMB = defaultCatalogMaxMB
	}
	hosts := c.Catalog.AllowedHosts[:0]
	for _, h := range c.Catalog.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	c.Catalog.AllowedHosts = hosts
}

func (c *Config) normalizeCorrelation() {
	c.Correlation.OnDuplicate = strings.ToLower(strings.TrimSpace(c.Correlation.OnDuplicate))
	if c.Correlation.OnDuplicate == "" {
		c.Correlation.OnDuplicate = defaultDuplicatePolicy
	}
	if c.Correlation.SweepIntervalSeconds <= 0 {
		c.Correlation.SweepIntervalSeconds = defaultCorrelationSweep
	}
}

func (c *Config) normalizeDispatch() {
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = defaultDispatchWorkers
	}
	if c.Dispatch.QueueSize <= 0 {
		c.Dispatch.QueueSize = defaultDispatchQueueSize
	}
	c.Dispatch.DefaultRequesterName = strings.TrimSpace(c.Dispatch.DefaultRequesterName)
	if c.Dispatch.DefaultRequesterName == "" {
		c.Dispatch.DefaultRequesterName = defaultRequesterName
	}
	if c.Dispatch.EnrichTimeout <= 0 {
		c.Dispatch.EnrichTimeout = defaultEnrichTimeout
	}
}

func (c *Config) normalizeLedger() error {
	var err error
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = defaultLedgerPath
	}
	if c.Ledger.Path, err = expandPath(c.Ledger.Path); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeEvents() {
	if url, ok := lookupTrimmed("AMQP_URL"); ok {
		c.Events.AMQPURL = url
	}
	c.Events.AMQPURL = strings.TrimSpace(c.Events.AMQPURL)
	c.Events.Exchange = strings.TrimSpace(c.Events.Exchange)
	if c.Events.Exchange == "" {
		c.Events.Exchange = defaultEventsExchange
	}
	c.Events.Producer = strings.TrimSpace(c.Events.Producer)
	if c.Events.Producer == "" {
		c.Events.Producer = defaultEventsProducer
	}
	if c.Events.ConnectTimeout <= 0 {
		c.Events.ConnectTimeout = defaultEventsConnectTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
