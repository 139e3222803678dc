// Package reqid issues request identifiers for outbound try-on requests.
//
// Identifiers are decimal strings shaped like a millisecond Unix timestamp so
// they read naturally in the operator chat, but the generator never hands out
// the same value twice within a process, even when many requests arrive in the
// same millisecond.
package reqid

import (
	"strconv"
	"sync/atomic"
	"time"
)

const (
	// MinDigits is the shortest valid identifier (millisecond epoch floor).
	MinDigits = 13
	// MaxDigits is the longest valid identifier (fits an int64).
	MaxDigits = 19
)

// ID is an opaque request identifier made only of decimal digits.
type ID string

// String returns the identifier text.
func (id ID) String() string { return string(id) }

// Valid reports whether id has the shape produced by a Generator.
func (id ID) Valid() bool {
	if len(id) < MinDigits || len(id) > MaxDigits {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// Parse validates raw and returns it as an ID.
func Parse(raw string) (ID, bool) {
	id := ID(raw)
	return id, id.Valid()
}

// Generator produces strictly increasing identifiers.
type Generator struct {
	last atomic.Int64
	now  func() time.Time
}

// NewGenerator returns a generator backed by the wall clock.
func NewGenerator() *Generator {
	return NewGeneratorWithClock(time.Now)
}

// NewGeneratorWithClock returns a generator that reads time from now.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Next returns max(last+1, now in milliseconds). Safe for concurrent use.
func (g *Generator) Next() ID {
	for {
		last := g.last.Load()
		candidate := g.now().UnixMilli()
		if candidate <= last {
			candidate = last + 1
		}
		if g.last.CompareAndSwap(last, candidate) {
			return ID(strconv.FormatInt(candidate, 10))
		}
	}
}
