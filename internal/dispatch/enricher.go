package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tryonrelay/internal/caption"
	"tryonrelay/internal/ledger"
	"tryonrelay/internal/logging"
	"tryonrelay/internal/reqid"
	"tryonrelay/internal/telegram"
	"tryonrelay/internal/textutil"
)

type job struct {
	id         reqid.ID
	messageID  int64
	catalogRef string
}

type enricherOptions struct {
	chatID    string
	workers   int
	queueSize int
	timeout   time.Duration
}

// Enricher delivers the catalog image for dispatched requests on a bounded
// pool of workers.
type Enricher struct {
	relay   Relay
	catalog CatalogResolver
	ledger  Ledger
	logger  *slog.Logger
	opts    enricherOptions

	mu      sync.RWMutex
	closed  bool
	started bool
	jobs    chan job
	group   *errgroup.Group
}

func newEnricher(relay Relay, resolver CatalogResolver, l Ledger, logger *slog.Logger, opts enricherOptions) *Enricher {
	if opts.workers <= 0 {
		opts.workers = 1
	}
	if opts.queueSize <= 0 {
		opts.queueSize = 16
	}
	if opts.timeout <= 0 {
		opts.timeout = time.Minute
	}
	return &Enricher{
		relay:   relay,
		catalog: resolver,
		ledger:  l,
		logger:  logger,
		opts:    opts,
		jobs:    make(chan job, opts.queueSize),
	}
}

// Start launches the workers once.
func (e *Enricher) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true
	e.group = &errgroup.Group{}
	for i := 0; i < e.opts.workers; i++ {
		e.group.Go(func() error {
			e.work(ctx)
			return nil
		})
	}
	e.logger.Debug("enrichment workers started", logging.Int("workers", e.opts.workers))
}

// Enqueue schedules j without blocking. It reports false when the queue is
// full or the pool has stopped.
func (e *Enricher) Enqueue(j job) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	select {
	case e.jobs <- j:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for workers to finish. Jobs still queued
// after the workers exit are marked dropped.
func (e *Enricher) Stop() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.jobs)
	group := e.group
	e.mu.Unlock()

	var err error
	if group != nil {
		err = group.Wait()
	}
	for j := range e.jobs {
		e.mark(context.Background(), j.id, ledger.EnrichmentDropped, "shutdown")
	}
	return err
}

func (e *Enricher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-e.jobs:
			if !ok {
				return
			}
			e.run(ctx, j)
		}
	}
}

// run delivers one job. Sends are detached from daemon cancellation so an
// in-flight delivery completes within the job timeout.
func (e *Enricher) run(parent context.Context, j job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), e.opts.timeout)
	defer cancel()

	logger := e.logger.With(logging.String(logging.FieldCorrelationID, j.id.String()))

	img, err := e.catalog.Resolve(ctx, j.catalogRef)
	if err == nil {
		_, err = e.relay.SendPhoto(ctx, telegram.Photo{
			ChatID:   e.opts.chatID,
			Data:     img.Data,
			Filename: textutil.SanitizeFileName(img.Filename, "catalogo.jpg"),
			Caption:  caption.CatalogCaption(j.id, j.catalogRef),
			ReplyTo:  j.messageID,
		})
		if err == nil {
			logger.Info("catalog image delivered", logging.String("source", img.Source))
			e.mark(ctx, j.id, ledger.EnrichmentPhoto, "")
			return
		}
		logging.WarnWithContext(logger, "catalog photo send failed; falling back to text", "enrichment_send_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "operator receives the catalog locator as text"),
		)
	} else {
		logging.WarnWithContext(logger, "catalog image unavailable; falling back to text", "catalog_resolve_failed",
			logging.Error(err),
			logging.String("catalog_ref", j.catalogRef),
			logging.String(logging.FieldImpact, "operator receives the catalog locator as text"),
			logging.String(logging.FieldErrorHint, "check paths.catalog_dir and catalog.max_mb"),
		)
	}

	cause := err.Error()
	if _, ferr := e.relay.SendMessage(ctx, telegram.Text{
		ChatID:  e.opts.chatID,
		Text:    caption.FallbackText(j.id, j.catalogRef),
		ReplyTo: j.messageID,
	}); ferr != nil {
		logging.ErrorWithContext(logger, "fallback text send failed", "enrichment_failed",
			logging.Error(ferr),
			logging.String("cause", cause),
		)
		e.mark(ctx, j.id, ledger.EnrichmentFailed, ferr.Error())
		return
	}
	logger.Info("catalog locator sent as text")
	e.mark(ctx, j.id, ledger.EnrichmentText, cause)
}

func (e *Enricher) mark(ctx context.Context, id reqid.ID, state ledger.Enrichment, detail string) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.MarkEnrichment(ctx, id.String(), state, detail); err != nil {
		e.logger.Warn("ledger enrichment update failed",
			logging.String(logging.FieldCorrelationID, id.String()),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ledger_write_failed"),
		)
	}
}
