// Package retry provides a bounded attempt loop with per-attempt lifecycle
// hooks. Recoverable domain failures are carried between attempts so each
// retry knows what the previous attempt broke on.
package retry

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a recoverable attempt failure.
type FailureKind string

const (
	// FailureCompilation marks a compiler rejection of generated source.
	FailureCompilation FailureKind = "compilation"
	// FailureValidation marks a visual rejection of an accepted preview.
	FailureValidation FailureKind = "validation"
)

// Failure is a typed recoverable attempt error. Attempt functions convert
// every domain failure they want retried into one of these.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Message)
}

// AttemptContext describes the attempt about to run. Attempt numbers are
// 1-indexed and contiguous; LastFailure is nil only on the first attempt.
type AttemptContext struct {
	Attempt     int
	MaxAttempts int
	LastFailure *Failure
}

// Hooks receive per-attempt lifecycle notifications.
type Hooks struct {
	OnAttemptStart  func(AttemptContext)
	OnAttemptFailed func(AttemptContext, error)
}

// ExhaustedError aggregates the final failure after the attempt budget is
// spent. It is the only fatal path out of Run.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed, last error: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Run invokes attempt up to maxAttempts times, returning the first success.
// maxAttempts is clamped to a minimum of 1. Context cancellation between
// attempts stops the loop immediately.
func Run[T any](ctx context.Context, maxAttempts int, hooks Hooks, attempt func(context.Context, AttemptContext) (T, error)) (T, error) {
	var zero T

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	var lastFailure *Failure

	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		ac := AttemptContext{
			Attempt:     n,
			MaxAttempts: maxAttempts,
			LastFailure: lastFailure,
		}

		if hooks.OnAttemptStart != nil {
			hooks.OnAttemptStart(ac)
		}

		result, err := attempt(ctx, ac)
		if err == nil {
			return result, nil
		}

		if hooks.OnAttemptFailed != nil {
			hooks.OnAttemptFailed(ac, err)
		}

		lastErr = err

		var failure *Failure
		if errors.As(err, &failure) {
			lastFailure = failure
		} else {
			lastFailure = &Failure{Kind: FailureCompilation, Message: err.Error()}
		}
	}

	return zero, &ExhaustedError{Attempts: maxAttempts, Last: lastErr}
}
