package correlation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tryonrelay/internal/logging"
	"tryonrelay/internal/reqid"
)

// Policy decides what happens when a second reply resolves an identifier that
// is already resolved.
type Policy string

const (
	// Overwrite keeps the latest URL and moves the previous one into History.
	Overwrite Policy = "overwrite"
	// KeepFirst ignores later replies.
	KeepFirst Policy = "keep_first"
)

// Entry is a resolved correlation.
type Entry struct {
	ID         reqid.ID
	URL        string
	ResolvedAt time.Time
	// Revisions counts how many replies have been accepted for ID.
	Revisions int
	// History holds earlier URLs, oldest first.
	History   []string
	ExpiresAt time.Time
}

// Store maps request identifiers to resolved result URLs. Absence means
// pending.
type Store interface {
	// Set records url for id and returns the entry now held. The boolean is
	// false when the existing value was kept: the policy refused the change,
	// or url is the one already stored.
	Set(id reqid.ID, url string) (Entry, bool)
	Get(id reqid.ID) (Entry, bool)
}

// Options configures a MemoryStore.
type Options struct {
	// TTL bounds how long an entry stays queryable after its last write.
	// Zero disables expiry.
	TTL           time.Duration
	SweepInterval time.Duration
	Policy        Policy
	Now           func() time.Time
	Logger        *slog.Logger
}

// MemoryStore is a process-local Store with per-entry expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[reqid.ID]Entry

	ttl           time.Duration
	sweepInterval time.Duration
	policy        Policy
	now           func() time.Time
	logger        *slog.Logger
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts Options) *MemoryStore {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	policy := opts.Policy
	if policy != KeepFirst {
		policy = Overwrite
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}
	return &MemoryStore{
		entries:       make(map[reqid.ID]Entry),
		ttl:           opts.TTL,
		sweepInterval: sweep,
		policy:        policy,
		now:           now,
		logger:        logging.NewComponentLogger(opts.Logger, "correlation"),
	}
}

// Set implements Store.
func (s *MemoryStore) Set(id reqid.ID, url string) (Entry, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[id]
	if ok && s.expired(existing, now) {
		ok = false
	}
	if ok && (s.policy == KeepFirst || existing.URL == url) {
		return cloneEntry(existing), false
	}

	entry := Entry{ID: id, URL: url, ResolvedAt: now, Revisions: 1}
	if ok {
		entry.Revisions = existing.Revisions + 1
		entry.History = append(append([]string(nil), existing.History...), existing.URL)
	}
	if s.ttl > 0 {
		entry.ExpiresAt = now.Add(s.ttl)
	}
	s.entries[id] = entry
	return cloneEntry(entry), true
}

// Get implements Store. Expired entries read as pending.
func (s *MemoryStore) Get(id reqid.ID) (Entry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || s.expired(entry, s.now()) {
		return Entry{}, false
	}
	return cloneEntry(entry), true
}

// Len returns the number of held entries, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep evicts expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if s.expired(entry, now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug("expired correlations evicted", logging.Int("removed", removed))
			}
		}
	}
}

func (s *MemoryStore) expired(entry Entry, now time.Time) bool {
	return !entry.ExpiresAt.IsZero() && !now.Before(entry.ExpiresAt)
}

func cloneEntry(e Entry) Entry {
	if len(e.History) > 0 {
		e.History = append([]string(nil), e.History...)
	}
	return e
}
