package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tryonrelay/internal/catalog"
	"tryonrelay/internal/config"
	"tryonrelay/internal/correlation"
	"tryonrelay/internal/dispatch"
	"tryonrelay/internal/events"
	"tryonrelay/internal/ledger"
	"tryonrelay/internal/logging"
	"tryonrelay/internal/replies"
	"tryonrelay/internal/telegram"
)

// seenUpdateRetention bounds how long webhook update ids are remembered.
const seenUpdateRetention = 7 * 24 * time.Hour

// Dependencies are optional collaborators supplied by the caller.
type Dependencies struct {
	// Ledger enables request bookkeeping and webhook dedup when non-nil.
	Ledger *ledger.Store
	// Publisher receives lifecycle events. Defaults to events.Noop.
	Publisher events.Publisher
	// HTTPClient is used for Bot API calls. Remote catalog fetches use their
	// own client that refuses private addresses.
	HTTPClient *http.Client
}

// Daemon owns the relay's long-running services and enforces single-instance
// execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	relay      *telegram.Client
	store      *correlation.MemoryStore
	ledger     *ledger.Store
	publisher  events.Publisher
	dispatcher *dispatch.Dispatcher
	replies    *replies.Queue
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	sweeper   sync.WaitGroup
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	StartedAt    time.Time
	Correlations int
	LedgerPath   string
	LockFilePath string
	Address      string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, deps Dependencies) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if err := cfg.RequireRelay(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TelegramTimeout()}
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}

	relay := telegram.New(httpClient, cfg.Telegram.BaseURL, cfg.Telegram.BotToken)
	store := correlation.NewMemoryStore(correlation.Options{
		TTL:           cfg.CorrelationTTL(),
		SweepInterval: cfg.CorrelationSweepInterval(),
		Policy:        correlation.Policy(cfg.Correlation.OnDuplicate),
		Logger:        logger,
	})
	resolver := catalog.NewResolver(catalog.Options{
		Dir:          cfg.Paths.CatalogDir,
		FetchTimeout: cfg.CatalogFetchTimeout(),
		MaxBytes:     cfg.CatalogMaxBytes(),
		AllowedHosts: cfg.Catalog.AllowedHosts,
	})

	dispatchDeps := dispatch.Dependencies{
		Relay:     relay,
		Catalog:   resolver,
		Publisher: publisher,
		Logger:    logger,
	}
	replyDeps := replies.Dependencies{
		Store:     store,
		Resolver:  relay,
		Publisher: publisher,
		Logger:    logger,
	}
	// Interfaces stay nil without a ledger so the optional paths are skipped.
	if deps.Ledger != nil {
		dispatchDeps.Ledger = deps.Ledger
		replyDeps.Deduper = deps.Ledger
		replyDeps.Recorder = deps.Ledger
	}

	identity := replies.Identity{BotID: relay.BotID()}
	if chatID, ok := cfg.NumericChatID(); ok {
		identity.ChatID = chatID
	} else {
		logger.Warn("operator chat id is not numeric; replies to channel posts will be ignored",
			logging.String("chat_id", cfg.Telegram.ChatID),
			logging.String(logging.FieldEventType, "chat_id_not_numeric"),
			logging.String(logging.FieldErrorHint, "set telegram.chat_id to the numeric chat id"),
		)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "tryonrelayd.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		relay:     relay,
		store:     store,
		ledger:    deps.Ledger,
		publisher: publisher,
		dispatcher: dispatch.New(dispatchDeps, dispatch.Options{
			ChatID:               cfg.Telegram.ChatID,
			DefaultRequesterName: cfg.Dispatch.DefaultRequesterName,
			Workers:              cfg.Dispatch.Workers,
			QueueSize:            cfg.Dispatch.QueueSize,
			EnrichTimeout:        cfg.EnrichTimeout(),
		}),
		replies: replies.NewQueue(replies.NewListener(replyDeps, identity), logger, replies.QueueOptions{
			Workers:   cfg.Telegram.WebhookWorkers,
			QueueSize: cfg.Telegram.WebhookQueueSize,
			Timeout:   cfg.TelegramTimeout(),
		}),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches background workers, and begins
// serving HTTP.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tryonrelay daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.dispatcher.Start(runCtx)
	d.replies.Start(runCtx)
	d.sweeper.Add(1)
	go func() {
		defer d.sweeper.Done()
		d.store.Run(runCtx)
	}()
	d.pruneSeenUpdates(runCtx)

	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("tryonrelay daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
		logging.Bool("ledger", d.ledger != nil),
	)
	return nil
}

// Stop stops serving, drains enrichment and queued replies, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.dispatcher.Stop(); err != nil {
		d.logger.Warn("enrichment pool stop", logging.Error(err))
	}
	if err := d.replies.Stop(); err != nil {
		d.logger.Warn("reply pool stop", logging.Error(err))
	}
	d.sweeper.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("tryonrelay daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.publisher != nil {
		errs = append(errs, d.publisher.Close())
	}
	if d.ledger != nil {
		errs = append(errs, d.ledger.Close())
	}
	return errors.Join(errs...)
}

// Status reports runtime information.
func (d *Daemon) Status() Status {
	st := Status{
		Running:      d.running.Load(),
		Correlations: d.store.Len(),
		LockFilePath: d.lockPath,
		Address:      d.api.address(),
	}
	if d.ledger != nil {
		st.LedgerPath = d.ledger.Path()
	}
	d.mu.Lock()
	st.StartedAt = d.startedAt
	d.mu.Unlock()
	return st
}

// Handler exposes the HTTP surface without starting a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

func (d *Daemon) pruneSeenUpdates(ctx context.Context) {
	if d.ledger == nil {
		return
	}
	removed, err := d.ledger.PruneSeen(ctx, time.Now().Add(-seenUpdateRetention))
	if err != nil {
		d.logger.Warn("prune seen webhook updates", logging.Error(err))
		return
	}
	if removed > 0 {
		d.logger.Debug("pruned seen webhook updates", logging.Int64("removed", removed))
	}
}
