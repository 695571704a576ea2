package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Resilient bounds every call to the wrapped Completer with a per-attempt
// timeout and a fixed number of retries.
type Resilient struct {
	next    Completer
	timeout time.Duration
	retries int

	// InitialInterval is the first backoff delay. Tests shrink it.
	InitialInterval time.Duration
}

// NewResilient wraps next. A non-positive timeout disables the per-attempt
// deadline.
func NewResilient(next Completer, timeout time.Duration, retries int) *Resilient {
	if retries < 0 {
		retries = 0
	}
	return &Resilient{
		next:            next,
		timeout:         timeout,
		retries:         retries,
		InitialInterval: 500 * time.Millisecond,
	}
}

// Complete implements Completer. ErrUnavailable and caller cancellation are
// not retried.
func (r *Resilient) Complete(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	attempt := 0

	operation := func() error {
		attempt++
		attemptCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		out, err := r.next.Complete(attemptCtx, req)
		if err == nil {
			resp = out
			return nil
		}
		if errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if attempt <= r.retries {
			log.Printf("[Completion] Attempt %d failed, retrying: %v", attempt, err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.InitialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.retries)), ctx)

	if err := backoff.Retry(operation, b); err != nil {
		return nil, fmt.Errorf("completion failed after %d attempt(s): %w", attempt, err)
	}
	return resp, nil
}
