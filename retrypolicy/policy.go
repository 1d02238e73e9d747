// Package retrypolicy implements bounded retry with linear backoff and
// error classification. Every retried call site in the repository goes
// through one Policy instead of carrying its own backoff loop.
package retrypolicy

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientCredits signals that the remote account has run out of
// generation credits. It is terminal: retrying cannot fix it, and callers
// should surface a specific message instead of a generic failure.
var ErrInsufficientCredits = errors.New("insufficient generation credits")

// ExhaustedError wraps the last observed error once every attempt has
// failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %s", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Classifier reports whether an error is terminal. Terminal errors are
// returned immediately without backoff; everything else, timeouts included,
// is retried.
type Classifier func(err error) bool

// IsTerminal is the default classifier: only the well-known credit
// exhaustion signal is terminal.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}

// Policy describes one bounded retry schedule. The zero value retries once
// with no timeout and no backoff.
type Policy struct {
	// MaxAttempts is the total number of invocations, first try included.
	MaxAttempts int
	// PerAttemptTimeout bounds a single invocation; 0 disables it. This is
	// independent of any wall-clock deadline the caller holds around the
	// whole operation.
	PerAttemptTimeout time.Duration
	// BaseBackoff scales the wait between attempts: attempt * BaseBackoff.
	BaseBackoff time.Duration
	// Classify overrides IsTerminal when set.
	Classify Classifier
	// Recovered is consulted after an attempt times out. Reporting true
	// means the operation's effect landed server-side despite the client
	// timeout, and the attempt counts as a success. Best effort; callers
	// own the consistency caveats.
	Recovered func(ctx context.Context) bool
	// Sleep is a test seam, defaulting to time.Sleep.
	Sleep func(time.Duration)
}

// Do invokes op until it succeeds, a terminal error is observed, or
// MaxAttempts is exhausted. Exhaustion wraps the last error in
// *ExhaustedError.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	classify := p.Classify
	if classify == nil {
		classify = IsTerminal
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.PerAttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.PerAttemptTimeout)
		}
		err := op(attemptCtx)
		timedOut := ctx.Err() == nil &&
			(errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded))
		cancel()

		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if timedOut && p.Recovered != nil && p.Recovered(ctx) {
			return nil
		}
		if !timedOut && classify(err) {
			return err
		}

		lastErr = err
		if attempt < attempts {
			sleep(time.Duration(attempt) * p.BaseBackoff)
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}
