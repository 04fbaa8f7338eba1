package camera

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/arloliu/go-msgcam/internal/pool"
)

// WaitState polls the camera state until target is observed or timeout elapses.
//
// The first query is issued immediately, later ones one poll interval after
// the previous reply. WaitState returns as soon as a reply reports target, so
// it never queries past a match. A non-positive timeout leaves only ctx as bound.
func (c *Camera) WaitState(ctx context.Context, target State, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for polls := 1; ; polls++ {
		state, err := c.State(ctx)
		c.metrics.incPollCount()
		if err != nil {
			return err
		}

		c.logger.Debug("camera: poll state", "state", state, "target", target, "polls", polls)
		if state == target {
			return nil
		}

		if err := pool.Sleep(ctx, c.cfg.pollInterval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: waiting for %s, last observed %s after %d polls", ErrTimeout, target, state, polls)
			}

			return fmt.Errorf("camera: waiting for %s: %w", target, err)
		}
	}
}

func secondsToDuration(seconds float64) time.Duration {
	if seconds >= math.MaxInt64/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(seconds * float64(time.Second))
}
