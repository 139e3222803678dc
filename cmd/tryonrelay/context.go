package main

import (
	"net/http"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tryonrelay/internal/api"
	"tryonrelay/internal/config"
	"tryonrelay/internal/telegram"
)

type commandContext struct {
	configFlag *string
	serverFlag *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, serverFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		serverFlag: serverFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	server := cfg.Server.Bind
	if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
		server = strings.TrimSpace(*c.serverFlag)
	}
	token := cfg.Server.APIToken
	if c.tokenFlag != nil && strings.TrimSpace(*c.tokenFlag) != "" {
		token = strings.TrimSpace(*c.tokenFlag)
	}
	return api.NewClient(&http.Client{Timeout: cfg.TelegramTimeout()}, server, token), nil
}

func (c *commandContext) telegramClient() (*telegram.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireRelay(); err != nil {
		return nil, err
	}
	return telegram.New(&http.Client{Timeout: cfg.TelegramTimeout()}, cfg.Telegram.BaseURL, cfg.Telegram.BotToken), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
