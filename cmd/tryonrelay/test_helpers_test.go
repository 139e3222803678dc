package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tryonrelay/internal/config"
	"tryonrelay/internal/daemon"
	"tryonrelay/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	tg         *testsupport.TelegramServer
	daemon     *daemon.Daemon
	configPath string
	address    string
}

func clearRelayEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"TELEGRAM_TOKEN", "CHAT_ID", "PORT", "TELEGRAM_WEBHOOK_SECRET", "TRYONRELAY_API_TOKEN", "AMQP_URL"} {
		t.Setenv(key, "")
	}
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	clearRelayEnv(t)

	tg := testsupport.NewTelegramServer(t)
	opts = append([]testsupport.ConfigOption{testsupport.WithTelegramBaseURL(tg.URL)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, tg: tg, configPath: configPath}
}

func (env *cliTestEnv) startDaemon(t *testing.T) {
	t.Helper()
	deps := daemon.Dependencies{HTTPClient: env.tg.Client()}
	if env.cfg.Ledger.Enabled {
		deps.Ledger = testsupport.MustOpenLedger(t, env.cfg)
	}
	d, err := daemon.New(env.cfg, nil, deps)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	env.daemon = d
	env.address = d.Status().Address
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
