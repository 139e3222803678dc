package replies

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tryonrelay/internal/logging"
)

// QueueOptions sizes the background reply pool.
type QueueOptions struct {
	Workers   int
	QueueSize int
	// Timeout bounds one Ingest call, including the attachment lookup.
	Timeout time.Duration
}

// Queue ingests acknowledged webhook events on a bounded pool of workers so
// the webhook can answer before the attachment is resolved.
type Queue struct {
	listener *Listener
	logger   *slog.Logger
	opts     QueueOptions

	mu      sync.RWMutex
	closed  bool
	started bool
	events  chan Event
	group   *errgroup.Group
	busy    sync.WaitGroup
}

// NewQueue wraps l. Events submitted before Start or after Stop are ingested
// on the caller's goroutine.
func NewQueue(l *Listener, logger *slog.Logger, opts QueueOptions) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Queue{
		listener: l,
		logger:   logger,
		opts:     opts,
		events:   make(chan Event, opts.QueueSize),
	}
}

// Start launches the workers once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.group = &errgroup.Group{}
	for i := 0; i < q.opts.Workers; i++ {
		q.group.Go(func() error {
			q.work(ctx)
			return nil
		})
	}
	q.logger.Debug("reply workers started", logging.Int("workers", q.opts.Workers))
}

// Submit hands ev to the pool without blocking. When the pool is not running
// or its queue is full the event is ingested inline, so no acknowledged
// update is lost.
func (q *Queue) Submit(ctx context.Context, ev Event) {
	if q.enqueue(ev) {
		return
	}
	q.logger.Debug("reply queue unavailable; ingesting inline",
		logging.Int64(logging.FieldUpdateID, ev.UpdateID),
	)
	q.ingest(ctx, ev)
}

func (q *Queue) enqueue(ev Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed || !q.started {
		return false
	}
	q.busy.Add(1)
	select {
	case q.events <- ev:
		return true
	default:
		q.busy.Done()
		return false
	}
}

// Pending reports events waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.events)
}

// Wait blocks until every submitted event has been ingested.
func (q *Queue) Wait() {
	q.busy.Wait()
}

// Stop closes the queue and waits for the workers. Events still queued after
// the workers exit are ingested before Stop returns.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.events)
	group := q.group
	q.mu.Unlock()

	var err error
	if group != nil {
		err = group.Wait()
	}
	for ev := range q.events {
		q.ingest(context.Background(), ev)
		q.busy.Done()
	}
	return err
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-q.events:
			if !ok {
				return
			}
			q.ingest(ctx, ev)
			q.busy.Done()
		}
	}
}

// ingest is detached from daemon cancellation so an acknowledged update is
// processed within the timeout.
func (q *Queue) ingest(parent context.Context, ev Event) Outcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), q.opts.Timeout)
	defer cancel()
	return q.listener.Ingest(ctx, ev)
}
