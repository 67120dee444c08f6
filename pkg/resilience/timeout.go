package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a derived context cancelled after the given
// budget. A non-positive budget means no limit. When the budget is
// exceeded the returned error wraps context.DeadlineExceeded; fn may still
// be running at that point, so callers must treat its effects as
// indeterminate.
func WithTimeout(ctx context.Context, budget time.Duration, name string, fn func(ctx context.Context) error) error {
	if budget <= 0 {
		return fn(ctx)
	}
	budgetCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(budgetCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-budgetCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w (budget: %v)", name, context.DeadlineExceeded, budget)
	}
}
