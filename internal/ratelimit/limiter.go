// Package ratelimit enforces a per-client sliding-window quota on form
// submissions. The check and the record are deliberately split: a
// submission only consumes quota once the downstream dispatch succeeded,
// so a vendor outage cannot lock a visitor out.
package ratelimit

import (
	"context"
	"time"
)

// Store persists submission timestamps per client. Implementations must
// prune entries older than the window before counting.
type Store interface {
	// Count returns how many submissions from clientID fall inside the
	// trailing window ending at now.
	Count(ctx context.Context, clientID string, now time.Time, window time.Duration) (int, error)
	// Record appends a submission timestamp for clientID.
	Record(ctx context.Context, clientID string, now time.Time) error
}

// Limiter applies a max-per-window quota on top of a Store.
type Limiter struct {
	store  Store
	window time.Duration
	max    int
	now    func() time.Time
}

// New builds a Limiter allowing max submissions per window per client.
func New(store Store, window time.Duration, max int) *Limiter {
	return &Limiter{store: store, window: window, max: max, now: time.Now}
}

// Allow reports whether clientID still has quota left. It does not consume
// quota; call Record after the submission actually went through.
func (l *Limiter) Allow(ctx context.Context, clientID string) (bool, error) {
	n, err := l.store.Count(ctx, clientID, l.now(), l.window)
	if err != nil {
		return false, err
	}
	return n < l.max, nil
}

// Record charges one submission against clientID's quota.
func (l *Limiter) Record(ctx context.Context, clientID string) error {
	return l.store.Record(ctx, clientID, l.now())
}
