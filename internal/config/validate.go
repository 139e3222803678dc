package config

import (
	"errors"
	"fmt"
	"strings"
)

// Duplicate reply policies accepted by correlation.on_duplicate.
const (
	DuplicateOverwrite = "overwrite"
	DuplicateKeepFirst = "keep_first"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateCorrelation(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// RequireRelay reports whether the Telegram credentials needed to dispatch are present.
// Validate does not demand them so CLI commands that never talk to Telegram keep working.
func (c *Config) RequireRelay() error {
	if c.Telegram.BotToken == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("telegram.bot_token is required. Set TELEGRAM_TOKEN env var or edit %s (create with 'tryonrelay config init')", defaultPath)
	}
	if c.Telegram.ChatID == "" {
		return errors.New("telegram.chat_id is required (or set CHAT_ID)")
	}
	return nil
}

func (c *Config) validateTelegram() error {
	if !strings.HasPrefix(c.Telegram.BaseURL, "http://") && !strings.HasPrefix(c.Telegram.BaseURL, "https://") {
		return fmt.Errorf("telegram.base_url must be an http(s) URL, got %q", c.Telegram.BaseURL)
	}
	if c.Telegram.BotToken != "" && !strings.Contains(c.Telegram.BotToken, ":") {
		return errors.New("telegram.bot_token must look like <bot_id>:<secret>")
	}
	return nil
}

func (c *Config) validateCorrelation() error {
	if c.Correlation.TTLHours < 0 {
		return errors.New("correlation.ttl_hours must be >= 0 (0 disables expiry)")
	}
	switch c.Correlation.OnDuplicate {
	case DuplicateOverwrite, DuplicateKeepFirst:
	default:
		return fmt.Errorf("correlation.on_duplicate: unsupported value %q (use %q or %q)", c.Correlation.OnDuplicate, DuplicateOverwrite, DuplicateKeepFirst)
	}
	return nil
}

func (c *Config) validateDispatch() error {
	if c.Dispatch.Workers > 64 {
		return errors.New("dispatch.workers must be <= 64")
	}
	if c.Telegram.WebhookWorkers > 64 {
		return errors.New("telegram.webhook_workers must be <= 64")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
