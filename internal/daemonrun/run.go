package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"tryonrelay/internal/config"
	"tryonrelay/internal/daemon"
	"tryonrelay/internal/events"
	"tryonrelay/internal/ledger"
	"tryonrelay/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when non-empty.
	LogLevel    string
	Development bool
}

// Run starts the relay and blocks until ctx is cancelled or the process
// receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.RequireRelay(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "tryonrelay.log")},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "tryonrelayd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	deps := daemon.Dependencies{}
	if cfg.Ledger.Enabled {
		store, err := ledger.Open(cfg)
		if err != nil {
			logger.Error("open ledger", logging.Error(err))
			return err
		}
		deps.Ledger = store
	}

	publisher, err := events.Connect(signalCtx, cfg, logger)
	if err != nil {
		logging.WarnWithContext(logger, "event publisher unavailable", "events_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check events.amqp_url and broker reachability"),
			logging.String(logging.FieldImpact, "lifecycle events will not be published"),
		)
		publisher = events.Noop{}
	}
	deps.Publisher = publisher

	logStartupSnapshot(logger, cfg)

	d, err := daemon.New(cfg, logger, deps)
	if err != nil {
		_ = publisher.Close()
		if deps.Ledger != nil {
			_ = deps.Ledger.Close()
		}
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("daemon close", logging.Error(err))
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check server.bind and that no other instance is running"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("tryonrelay daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logStartupSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	_, catalogErr := os.Stat(cfg.Paths.CatalogDir)
	logger.Info("startup snapshot",
		logging.String(logging.FieldEventType, "startup_snapshot"),
		logging.String("bind", cfg.Server.Bind),
		logging.String("chat_id", cfg.Telegram.ChatID),
		logging.Bool("webhook_secret_present", cfg.Telegram.WebhookSecret != ""),
		logging.Bool("api_token_present", cfg.Server.APIToken != ""),
		logging.Bool("ledger_enabled", cfg.Ledger.Enabled),
		logging.Bool("events_enabled", cfg.Events.AMQPURL != ""),
		logging.String("catalog_dir", cfg.Paths.CatalogDir),
		logging.Bool("catalog_dir_present", catalogErr == nil),
		logging.String("on_duplicate", cfg.Correlation.OnDuplicate),
	)
}
