package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tryonrelay/internal/caption"
	"tryonrelay/internal/catalog"
	"tryonrelay/internal/events"
	"tryonrelay/internal/ledger"
	"tryonrelay/internal/logging"
	"tryonrelay/internal/reqid"
	"tryonrelay/internal/telegram"
	"tryonrelay/internal/textutil"
)

var (
	// ErrInvalidInput marks submissions rejected before any side effect.
	ErrInvalidInput = errors.New("invalid submission")
	// ErrDispatch marks a failed primary send; the identifier is discarded.
	ErrDispatch = errors.New("dispatch to relay failed")
)

// Relay is the chat-relay surface the dispatcher needs.
type Relay interface {
	SendPhoto(ctx context.Context, p telegram.Photo) (telegram.Message, error)
	SendMessage(ctx context.Context, t telegram.Text) (telegram.Message, error)
}

// CatalogResolver loads catalog images.
type CatalogResolver interface {
	Resolve(ctx context.Context, ref string) (catalog.Image, error)
}

// Ledger records dispatched requests. Optional.
type Ledger interface {
	Insert(ctx context.Context, rec ledger.Record) error
	MarkEnrichment(ctx context.Context, id string, state ledger.Enrichment, detail string) error
}

// Submission is a customer request as received over HTTP.
type Submission struct {
	Image         []byte
	Filename      string
	RequesterName string
	CatalogRef    string
}

// Record describes the primary message sent for a request.
type Record struct {
	ID            reqid.ID
	ChatID        string
	MessageID     int64
	Caption       string
	RequesterName string
	CatalogRef    string
	ProductLabel  string
	CreatedAt     time.Time
}

// Receipt is returned once the primary message is in the chat.
type Receipt struct {
	ID        reqid.ID
	MessageID int64
}

// Dependencies bundles collaborators for a Dispatcher.
type Dependencies struct {
	Relay     Relay
	Catalog   CatalogResolver
	IDs       *reqid.Generator
	Ledger    Ledger
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Options configures a Dispatcher.
type Options struct {
	ChatID               string
	DefaultRequesterName string
	Workers              int
	QueueSize            int
	EnrichTimeout        time.Duration
}

// Dispatcher sends submissions to the operator chat.
type Dispatcher struct {
	relay       Relay
	ids         *reqid.Generator
	ledger      Ledger
	publisher   events.Publisher
	logger      *slog.Logger
	chatID      string
	defaultName string
	enricher    *Enricher
	now         func() time.Time
}

// New constructs a Dispatcher and its enrichment pool. Call Start before
// submitting so queued enrichment is processed.
func New(deps Dependencies, opts Options) *Dispatcher {
	logger := logging.NewComponentLogger(deps.Logger, "dispatcher")
	ids := deps.IDs
	if ids == nil {
		ids = reqid.NewGenerator()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	name := strings.TrimSpace(opts.DefaultRequesterName)
	if name == "" {
		name = "Cliente"
	}
	return &Dispatcher{
		relay:       deps.Relay,
		ids:         ids,
		ledger:      deps.Ledger,
		publisher:   publisher,
		logger:      logger,
		chatID:      opts.ChatID,
		defaultName: name,
		enricher: newEnricher(deps.Relay, deps.Catalog, deps.Ledger, logging.NewComponentLogger(deps.Logger, "enricher"), enricherOptions{
			chatID:    opts.ChatID,
			workers:   opts.Workers,
			queueSize: opts.QueueSize,
			timeout:   opts.EnrichTimeout,
		}),
		now: time.Now,
	}
}

// Start launches the enrichment workers. They stop when ctx is cancelled or
// Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.enricher.Start(ctx)
}

// Stop waits for in-flight enrichment to finish.
func (d *Dispatcher) Stop() error {
	return d.enricher.Stop()
}

// Pending reports how many enrichment jobs are waiting for a worker.
func (d *Dispatcher) Pending() int {
	return len(d.enricher.jobs)
}

// Submit validates s, sends the primary photo and schedules enrichment.
func (d *Dispatcher) Submit(ctx context.Context, s Submission) (Receipt, error) {
	if len(s.Image) == 0 {
		return Receipt{}, fmt.Errorf("%w: missing image", ErrInvalidInput)
	}
	catalogRef := strings.TrimSpace(s.CatalogRef)
	if catalogRef == "" {
		return Receipt{}, fmt.Errorf("%w: missing catalog reference", ErrInvalidInput)
	}
	name := strings.TrimSpace(s.RequesterName)
	if name == "" {
		name = d.defaultName
	}

	id := d.ids.Next()
	logger := logging.WithContext(ctx, d.logger).With(logging.String(logging.FieldCorrelationID, id.String()))

	text := caption.Build(caption.Request{ID: id, RequesterName: name, CatalogRef: catalogRef})
	msg, err := d.relay.SendPhoto(ctx, telegram.Photo{
		ChatID:   d.chatID,
		Data:     s.Image,
		Filename: textutil.SanitizeFileName(s.Filename, "solicitud.jpg"),
		Caption:  text,
	})
	if err != nil {
		logging.ErrorWithContext(logger, "primary photo send failed", "dispatch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, relayHint(err)),
		)
		return Receipt{}, fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	rec := Record{
		ID:            id,
		ChatID:        d.chatID,
		MessageID:     msg.MessageID,
		Caption:       text,
		RequesterName: name,
		CatalogRef:    catalogRef,
		ProductLabel:  caption.ProductLabel(catalogRef),
		CreatedAt:     d.now(),
	}
	logger.Info("request dispatched",
		logging.Int64("message_id", rec.MessageID),
		logging.String("product", rec.ProductLabel),
	)

	d.record(ctx, logger, rec)
	d.announce(ctx, logger, rec)

	if !d.enricher.Enqueue(job{id: id, messageID: msg.MessageID, catalogRef: catalogRef}) {
		logging.WarnWithContext(logger, "enrichment queue full; catalog image skipped", "enrichment_dropped",
			logging.String(logging.FieldImpact, "operator sees the request without the catalog image"),
			logging.String(logging.FieldErrorHint, "raise dispatch.queue_size or dispatch.workers"),
		)
		d.enricher.mark(ctx, id, ledger.EnrichmentDropped, "queue full")
	}

	return Receipt{ID: id, MessageID: msg.MessageID}, nil
}

func (d *Dispatcher) record(ctx context.Context, logger *slog.Logger, rec Record) {
	if d.ledger == nil {
		return
	}
	err := d.ledger.Insert(ctx, ledger.Record{
		ID:            rec.ID.String(),
		ChatID:        rec.ChatID,
		MessageID:     rec.MessageID,
		Caption:       rec.Caption,
		RequesterName: rec.RequesterName,
		CatalogRef:    rec.CatalogRef,
		ProductLabel:  rec.ProductLabel,
	})
	if err != nil {
		logging.WarnWithContext(logger, "ledger insert failed", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "request missing from the requests listing"),
		)
	}
}

func (d *Dispatcher) announce(ctx context.Context, logger *slog.Logger, rec Record) {
	err := d.publisher.Publish(ctx, events.TypeRequestDispatched, rec.ID.String(), events.RequestDispatched{
		RequestID:     rec.ID.String(),
		ChatID:        rec.ChatID,
		MessageID:     rec.MessageID,
		RequesterName: rec.RequesterName,
		ProductLabel:  rec.ProductLabel,
	})
	if err != nil {
		logging.WarnWithContext(logger, "event publish failed", "event_publish_failed",
			logging.Error(err),
			logging.String("event", events.TypeRequestDispatched),
		)
	}
}

func relayHint(err error) string {
	var reqErr *telegram.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Retryable() {
			return "telegram is throttling or unavailable; retry shortly"
		}
		return "check telegram.bot_token and telegram.chat_id"
	}
	return "check network connectivity to the Telegram API"
}
