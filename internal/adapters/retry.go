package adapters

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// RetryConfig configures connection retries.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	// Default: 200ms
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	// Default: 5s
	MaxDelay time.Duration

	// BackoffMultiplier grows the delay after each failed attempt.
	// Default: 2.0
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryResult reports what a retried operation did.
type RetryResult struct {
	// Attempts is the number of attempts made.
	Attempts int

	// LastError is the last error encountered (nil if successful).
	LastError error

	// Errors contains the error of each failed attempt.
	Errors []error

	// Success indicates whether the operation ultimately succeeded.
	Success bool
}

func (r RetryResult) String() string {
	if r.Success {
		if r.Attempts == 1 {
			return "succeeded on first attempt"
		}
		return fmt.Sprintf("succeeded after %d attempts", r.Attempts)
	}
	return fmt.Sprintf("failed after %d attempts: %v", r.Attempts, r.LastError)
}

// RetryableError wraps the final error of a failed retry sequence.
type RetryableError struct {
	Result RetryResult
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Result.Attempts, e.Result.LastError)
}

func (e *RetryableError) Unwrap() error {
	return e.Result.LastError
}

// IsRetryable reports whether err looks like a transient network failure
// while establishing a session. Authentication failures, SQL errors and
// context cancellation are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, io.EOF) {
		return true
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	// Thrift transports flatten socket errors into strings.
	msg := strings.ToLower(err.Error())
	for _, transient := range []string{"connection refused", "connection reset", "broken pipe", "i/o timeout"} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

// ExecuteWithRetry runs fn until it succeeds, fails with a non-retryable
// error, or MaxAttempts is reached. Callers receive every attempt's error.
//
//	result := adapters.ExecuteWithRetry(ctx, cfg, func() error {
//	    return client.Ping(ctx)
//	})
//	if !result.Success {
//	    return &adapters.RetryableError{Result: result}
//	}
func ExecuteWithRetry(ctx context.Context, config RetryConfig, fn func() error) RetryResult {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}

	result := RetryResult{
		Errors: make([]error, 0, config.MaxAttempts),
	}
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.LastError = err
			result.Errors = append(result.Errors, err)
			return result
		}

		err := fn()
		if err == nil {
			result.Success = true
			result.LastError = nil
			return result
		}

		result.LastError = err
		result.Errors = append(result.Errors, err)

		if !IsRetryable(err) || attempt == config.MaxAttempts {
			return result
		}

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.Errors = append(result.Errors, ctx.Err())
			return result
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * config.BackoffMultiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
	}

	return result
}
