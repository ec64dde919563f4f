package dedupe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"horse.fit/collate/internal/db"
)

// ErrWriterBusy is returned when the single-writer gate could not be
// acquired within the backoff schedule. Callers retry later; no cluster
// state has changed.
var ErrWriterBusy = errors.New("dedupe writer busy")

var writerBackoff = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
}

// writerLockID keys the advisory lock serializing cluster mutations across
// processes (dedupe, sweep and the API server each run their own Engine).
const writerLockID int64 = 0x636c7573746572 // "cluster"

// retryBusy runs try on the backoff schedule until it reports success,
// returning ErrWriterBusy once the schedule is exhausted.
func retryBusy(ctx context.Context, try func() (bool, error)) error {
	for attempt := 0; ; attempt++ {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt >= len(writerBackoff) {
			return ErrWriterBusy
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(writerBackoff[attempt]):
		}
	}
}

// writerGate serializes cluster mutations within one process. Reads never
// take it. Cross-process exclusion comes from lockWriterTx; the gate keeps
// in-process contention off the database.
type writerGate struct {
	mu sync.Mutex
}

func (g *writerGate) acquire(ctx context.Context) error {
	return retryBusy(ctx, func() (bool, error) {
		return g.mu.TryLock(), nil
	})
}

func (g *writerGate) release() {
	g.mu.Unlock()
}

// lockWriterTx takes the transaction-scoped advisory lock inside tx. The
// lock releases with the transaction, so no explicit unlock exists.
func lockWriterTx(ctx context.Context, tx db.Tx) error {
	return retryBusy(ctx, func() (bool, error) {
		var locked bool
		if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(?)`, writerLockID).Scan(&locked); err != nil {
			return false, fmt.Errorf("acquire writer lock: %w", err)
		}
		return locked, nil
	})
}
