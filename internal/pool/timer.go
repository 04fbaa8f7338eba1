// Package pool holds pooled timers used by the camera poll loops.
package pool

import (
	"context"
	"sync"
	"time"
)

var timers sync.Pool

// acquireTimer returns a stopped-and-drained timer reset to d.
func acquireTimer(d time.Duration) *time.Timer {
	v := timers.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t, _ := v.(*time.Timer)
	t.Reset(d)

	return t
}

// releaseTimer stops t, drains a pending tick and returns it to the pool.
func releaseTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timers.Put(t)
}

// Sleep blocks for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when ctx ends the wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := acquireTimer(d)
	defer releaseTimer(t)

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
