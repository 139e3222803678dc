package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"tryonrelay/internal/caption"
	"tryonrelay/internal/catalog"
	"tryonrelay/internal/dispatch"
	"tryonrelay/internal/ledger"
	"tryonrelay/internal/reqid"
	"tryonrelay/internal/telegram"
	"tryonrelay/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	)
}

type fakeLedger struct {
	mu      sync.Mutex
	records map[string]ledger.Record
	marks   map[string]ledger.Enrichment
	details map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		records: map[string]ledger.Record{},
		marks:   map[string]ledger.Enrichment{},
		details: map[string]string{},
	}
}

func (f *fakeLedger) Insert(_ context.Context, rec ledger.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeLedger) MarkEnrichment(_ context.Context, id string, state ledger.Enrichment, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks[id] = state
	f.details[id] = detail
	return nil
}

func (f *fakeLedger) mark(id reqid.ID) ledger.Enrichment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks[id.String()]
}

type harness struct {
	tg         *testsupport.TelegramServer
	ledger     *fakeLedger
	dispatcher *dispatch.Dispatcher
}

func newHarness(t *testing.T, queueSize int, start bool) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogImage("images/anillo1.jpg", 128))
	tg := testsupport.NewTelegramServer(t)
	fl := newFakeLedger()

	d := dispatch.New(dispatch.Dependencies{
		Relay:   telegram.New(tg.Client(), tg.URL, cfg.Telegram.BotToken),
		Catalog: catalog.NewResolver(catalog.Options{Dir: cfg.Paths.CatalogDir}),
		IDs:     reqid.NewGenerator(),
		Ledger:  fl,
	}, dispatch.Options{
		ChatID:    cfg.Telegram.ChatID,
		Workers:   2,
		QueueSize: queueSize,
	})
	if start {
		ctx, cancel := context.WithCancel(context.Background())
		d.Start(ctx)
		t.Cleanup(cancel)
	}
	t.Cleanup(func() { _ = d.Stop() })
	return &harness{tg: tg, ledger: fl, dispatcher: d}
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	h := newHarness(t, 4, true)

	cases := []dispatch.Submission{
		{CatalogRef: "images/anillo1.jpg"},
		{Image: []byte("img")},
		{Image: []byte("img"), CatalogRef: "   "},
	}
	for _, s := range cases {
		if _, err := h.dispatcher.Submit(context.Background(), s); !errors.Is(err, dispatch.ErrInvalidInput) {
			t.Fatalf("Submit(%+v) err = %v, want ErrInvalidInput", s, err)
		}
	}
	if calls := h.tg.Calls(); len(calls) != 0 {
		t.Fatalf("invalid submissions must not reach the relay, got %+v", calls)
	}
}

func TestSubmitSendsPrimaryAndCatalogReply(t *testing.T) {
	h := newHarness(t, 4, true)

	receipt, err := h.dispatcher.Submit(context.Background(), dispatch.Submission{
		Image:         []byte("selfie"),
		Filename:      "selfie.jpg",
		RequesterName: "Ana",
		CatalogRef:    "images/anillo1.jpg",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !receipt.ID.Valid() || receipt.MessageID != 100 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	if err := h.dispatcher.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	photos := h.tg.CallsTo("sendPhoto")
	if len(photos) != 2 {
		t.Fatalf("expected primary and catalog photos, got %+v", photos)
	}
	primary, secondary := photos[0], photos[1]
	if primary.ChatID != testsupport.TestChatID || string(primary.Photo) != "selfie" {
		t.Fatalf("unexpected primary call %+v", primary)
	}
	if got, ok := caption.Extract(primary.Caption); !ok || got != receipt.ID {
		t.Fatalf("primary caption %q does not carry %s", primary.Caption, receipt.ID)
	}
	if !strings.Contains(primary.Caption, "Ana") || !strings.Contains(primary.Caption, "ANILLO1") {
		t.Fatalf("primary caption missing details: %q", primary.Caption)
	}
	if secondary.ReplyTo != receipt.MessageID || len(secondary.Photo) != 128 {
		t.Fatalf("catalog photo should reply to primary: %+v", secondary)
	}
	if got, ok := caption.Extract(secondary.Caption); !ok || got != receipt.ID {
		t.Fatalf("catalog caption %q does not carry %s", secondary.Caption, receipt.ID)
	}

	rec, ok := h.ledger.records[receipt.ID.String()]
	if !ok || rec.MessageID != receipt.MessageID || rec.RequesterName != "Ana" {
		t.Fatalf("ledger record missing or wrong: %+v", rec)
	}
	if got := h.ledger.mark(receipt.ID); got != ledger.EnrichmentPhoto {
		t.Fatalf("enrichment = %q, want photo", got)
	}
}

func TestSubmitDefaultsRequesterName(t *testing.T) {
	h := newHarness(t, 4, true)
	if _, err := h.dispatcher.Submit(context.Background(), dispatch.Submission{
		Image:      []byte("selfie"),
		CatalogRef: "images/anillo1.jpg",
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	primary := h.tg.CallsTo("sendPhoto")[0]
	if !strings.Contains(primary.Caption, "👤 Cliente: Cliente") {
		t.Fatalf("expected default requester name, got %q", primary.Caption)
	}
}

func TestSubmitPrimaryFailureIsDispatchError(t *testing.T) {
	h := newHarness(t, 4, true)
	h.tg.FailNext("sendPhoto", 1)

	_, err := h.dispatcher.Submit(context.Background(), dispatch.Submission{
		Image:      []byte("selfie"),
		CatalogRef: "images/anillo1.jpg",
	})
	if !errors.Is(err, dispatch.ErrDispatch) {
		t.Fatalf("err = %v, want ErrDispatch", err)
	}
	var reqErr *telegram.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected relay error to be wrapped, got %v", err)
	}
	_ = h.dispatcher.Stop()
	if len(h.ledger.records) != 0 {
		t.Fatalf("failed dispatch must not be recorded: %+v", h.ledger.records)
	}
	if n := len(h.tg.Calls()); n != 1 {
		t.Fatalf("expected only the failed primary send, got %d calls", n)
	}
}

func TestMissingCatalogImageFallsBackToText(t *testing.T) {
	h := newHarness(t, 4, true)

	receipt, err := h.dispatcher.Submit(context.Background(), dispatch.Submission{
		Image:      []byte("selfie"),
		CatalogRef: "images/desconocido.jpg",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_ = h.dispatcher.Stop()

	texts := h.tg.CallsTo("sendMessage")
	if len(texts) != 1 {
		t.Fatalf("expected one fallback text, got %+v", h.tg.Calls())
	}
	if texts[0].ReplyTo != receipt.MessageID || !strings.Contains(texts[0].Text, "images/desconocido.jpg") {
		t.Fatalf("unexpected fallback %+v", texts[0])
	}
	if got, ok := caption.Extract(texts[0].Text); !ok || got != receipt.ID {
		t.Fatalf("fallback %q does not carry %s", texts[0].Text, receipt.ID)
	}
	if got := h.ledger.mark(receipt.ID); got != ledger.EnrichmentText {
		t.Fatalf("enrichment = %q, want text", got)
	}
}

func TestCatalogSendFailureFallsBackToText(t *testing.T) {
	h := newHarness(t, 4, false)

	receipt, err := h.dispatcher.Submit(context.Background(), dispatch.Submission{
		Image:      []byte("selfie"),
		CatalogRef: "images/anillo1.jpg",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.tg.FailNext("sendPhoto", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.dispatcher.Start(ctx)
	_ = h.dispatcher.Stop()

	if n := len(h.tg.CallsTo("sendMessage")); n != 1 {
		t.Fatalf("expected fallback text after catalog send failure, got %d", n)
	}
	if got := h.ledger.mark(receipt.ID); got != ledger.EnrichmentText {
		t.Fatalf("enrichment = %q, want text", got)
	}
}

func TestFallbackFailureIsRecorded(t *testing.T) {
	h := newHarness(t, 4, false)

	receipt, err := h.dispatcher.Submit(context.Background(), dispatch.Submission{
		Image:      []byte("selfie"),
		CatalogRef: "images/none.jpg",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.tg.FailNext("sendMessage", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.dispatcher.Start(ctx)
	_ = h.dispatcher.Stop()

	if got := h.ledger.mark(receipt.ID); got != ledger.EnrichmentFailed {
		t.Fatalf("enrichment = %q, want failed", got)
	}
}

func TestFullQueueDropsEnrichmentButAcknowledges(t *testing.T) {
	h := newHarness(t, 1, false)

	first, err := h.dispatcher.Submit(context.Background(), dispatch.Submission{Image: []byte("a"), CatalogRef: "images/anillo1.jpg"})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := h.dispatcher.Submit(context.Background(), dispatch.Submission{Image: []byte("b"), CatalogRef: "images/anillo1.jpg"})
	if err != nil {
		t.Fatalf("second Submit should still succeed: %v", err)
	}
	if got := h.ledger.mark(second.ID); got != ledger.EnrichmentDropped {
		t.Fatalf("second enrichment = %q, want dropped", got)
	}

	_ = h.dispatcher.Stop()
	if got := h.ledger.mark(first.ID); got != ledger.EnrichmentDropped {
		t.Fatalf("queued job at shutdown = %q, want dropped", got)
	}
}

func TestSubmitAfterStopSkipsEnrichment(t *testing.T) {
	h := newHarness(t, 4, true)
	_ = h.dispatcher.Stop()

	receipt, err := h.dispatcher.Submit(context.Background(), dispatch.Submission{Image: []byte("a"), CatalogRef: "images/anillo1.jpg"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := h.ledger.mark(receipt.ID); got != ledger.EnrichmentDropped {
		t.Fatalf("enrichment = %q, want dropped", got)
	}
}

func TestConcurrentSubmitsGetDistinctIDs(t *testing.T) {
	h := newHarness(t, 64, true)

	const n = 24
	ids := make(chan reqid.ID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := h.dispatcher.Submit(context.Background(), dispatch.Submission{Image: []byte("x"), CatalogRef: "images/anillo1.jpg"})
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			ids <- r.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[reqid.ID]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d ids, want %d", len(seen), n)
	}
}

func TestSubmitRecordsIntoSQLiteLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogImage("images/anillo1.jpg", 16))
	tg := testsupport.NewTelegramServer(t)
	store := testsupport.MustOpenLedger(t, cfg)

	d := dispatch.New(dispatch.Dependencies{
		Relay:   telegram.New(tg.Client(), tg.URL, cfg.Telegram.BotToken),
		Catalog: catalog.NewResolver(catalog.Options{Dir: cfg.Paths.CatalogDir}),
		Ledger:  store,
	}, dispatch.Options{ChatID: cfg.Telegram.ChatID, Workers: 1, QueueSize: 2, EnrichTimeout: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	receipt, err := d.Submit(ctx, dispatch.Submission{Image: []byte("x"), RequesterName: "Ana", CatalogRef: "images/anillo1.jpg"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	rec, err := store.Get(context.Background(), receipt.ID.String())
	if err != nil || rec == nil {
		t.Fatalf("ledger Get = %v, %v", rec, err)
	}
	if rec.Enrichment != ledger.EnrichmentPhoto || rec.ProductLabel != "ANILLO1" {
		t.Fatalf("unexpected ledger record %+v", rec)
	}
}
