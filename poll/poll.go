package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the maximum wait elapses before the check
// reports a terminal state.
var ErrTimeout = errors.New("poll: maximum wait exceeded")

// Policy bounds a wait on an external job.
type Policy struct {
	Interval time.Duration // delay between checks
	MaxWait  time.Duration // zero means wait until ctx is done
}

// CheckFunc reports whether the awaited job has reached a terminal state.
// A non-nil error stops polling immediately.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Until runs check right away and then once per interval until it reports
// done, returns an error, the max wait elapses, or ctx is cancelled. check
// receives a context bounded by the max wait, so a stalled status call is
// abandoned with ErrTimeout as well.
func Until(ctx context.Context, p Policy, check CheckFunc) error {
	if p.Interval <= 0 {
		p.Interval = time.Second
	}
	waitCtx := ctx
	if p.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.MaxWait)
		defer cancel()
	}

	tick := time.NewTimer(0)
	defer tick.Stop()
	for {
		select {
		case <-waitCtx.Done():
			return stopReason(ctx)
		case <-tick.C:
		}

		done, err := check(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil {
				return stopReason(ctx)
			}
			return err
		}
		if done {
			return nil
		}
		tick.Reset(p.Interval)
	}
}

// stopReason reports ctx's own error when the caller gave up, and
// ErrTimeout when only the max wait ran out.
func stopReason(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrTimeout
}
