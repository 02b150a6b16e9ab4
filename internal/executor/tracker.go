package executor

import (
	"sync"
	"time"

	"github.com/corvalis/riskbot/internal/domain"
)

// OutstandingOrder is the tracker's record of a submitted, not yet resolved
// order for one intent key.
type OutstandingOrder struct {
	Key         string
	OrderID     string
	ExchangeID  string
	ClientID    string
	PositionID  string
	Symbol      string
	Side        domain.OrderSide
	SubmittedAt time.Time
}

// Tracker enforces at-most-one outstanding order per intent key. An intent
// whose key is already tracked is suppressed until the order resolves, so
// re-evaluating an unresolved breach on consecutive cycles never produces a
// second order. Safe for concurrent use by the worker pool.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]OutstandingOrder
	ttl     time.Duration
}

// NewTracker creates a Tracker. The ttl is a safety bound: entries older than
// it are swept by Cleanup so a lost gateway confirmation cannot suppress an
// intent key forever.
func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		entries: make(map[string]OutstandingOrder),
		ttl:     ttl,
	}
}

// Outstanding reports whether an order for this intent key is still in flight.
func (t *Tracker) Outstanding(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

// Claim atomically reserves an intent key. It returns false when the key is
// already claimed, which makes duplicate intents within one batch collapse to
// a single submission even under the worker pool.
func (t *Tracker) Claim(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; ok {
		return false
	}
	t.entries[key] = OutstandingOrder{Key: key, SubmittedAt: time.Now().UTC()}
	return true
}

// MarkSubmitted records an in-flight order for its intent key.
func (t *Tracker) MarkSubmitted(o OutstandingOrder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o.SubmittedAt.IsZero() {
		o.SubmittedAt = time.Now().UTC()
	}
	t.entries[o.Key] = o
}

// Resolve clears the entry for a resolved order, re-arming its intent key.
func (t *Tracker) Resolve(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Reversal returns an outstanding order on the same position with the
// opposite side, if any. The coordinator cancels it before acting on the
// reversing intent.
func (t *Tracker) Reversal(positionID string, side domain.OrderSide) (OutstandingOrder, bool) {
	if positionID == "" {
		return OutstandingOrder{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, o := range t.entries {
		if o.PositionID == positionID && o.Side != side {
			return o, true
		}
	}
	return OutstandingOrder{}, false
}

// Snapshot returns a copy of all tracked orders, oldest first not guaranteed.
func (t *Tracker) Snapshot() []OutstandingOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]OutstandingOrder, 0, len(t.entries))
	for _, o := range t.entries {
		out = append(out, o)
	}
	return out
}

// Cleanup sweeps entries older than the TTL. Call periodically.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	for key, o := range t.entries {
		if now.Sub(o.SubmittedAt) >= t.ttl {
			delete(t.entries, key)
		}
	}
}
