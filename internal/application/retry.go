package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/logging"
)

const (
	defaultModelAttempts  = 3
	defaultModelBaseDelay = time.Second
	defaultModelMaxDelay  = 30 * time.Second

	defaultDownloadAttempts       = 5
	defaultDownloadBaseDelay      = 2 * time.Second
	defaultDownloadMaxDelay       = time.Minute
	defaultDownloadAttemptTimeout = 10 * time.Minute
)

// RetryPolicy bounds how an external call is retried.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration // zero means no per-attempt deadline
	Retryable      map[domain.FailureKind]bool
}

// NewRetryPolicy builds a policy retrying only the given kinds.
func NewRetryPolicy(maxAttempts int, base, maxDelay time.Duration, kinds ...domain.FailureKind) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := make(map[domain.FailureKind]bool, len(kinds))
	for _, k := range kinds {
		retryable[k] = true
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		MaxDelay:    maxDelay,
		Retryable:   retryable,
	}
}

// ModelCallPolicy is the default policy for remote language model requests.
func ModelCallPolicy() RetryPolicy {
	return NewRetryPolicy(defaultModelAttempts, defaultModelBaseDelay, defaultModelMaxDelay,
		domain.KindRateLimited, domain.KindServer, domain.KindNetwork, domain.KindTimeout)
}

// DownloadPolicy is the default policy for media downloads.
func DownloadPolicy() RetryPolicy {
	p := NewRetryPolicy(defaultDownloadAttempts, defaultDownloadBaseDelay, defaultDownloadMaxDelay,
		domain.KindNetwork, domain.KindTimeout)
	p.AttemptTimeout = defaultDownloadAttemptTimeout
	return p
}

// WithAttemptTimeout returns a copy of p with a per-attempt deadline.
func (p RetryPolicy) WithAttemptTimeout(d time.Duration) RetryPolicy {
	p.AttemptTimeout = d
	return p
}

// IsRetryable reports whether kind may be retried under p.
func (p RetryPolicy) IsRetryable(kind domain.FailureKind) bool {
	return p.Retryable[kind]
}

// Backoff returns the delay after the given 1-based attempt:
// min(BaseDelay * 2^(attempt-1), MaxDelay).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay > p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Failure describes a call that did not succeed.
type Failure struct {
	Kind     domain.FailureKind
	Message  string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// CallOutcome is the result of one resilient call. Exactly one of Value
// (when Failure is nil) or Failure is meaningful.
type CallOutcome[T any] struct {
	Value    T
	Attempts int
	Failure  *Failure
}

// OK reports whether the call succeeded.
func (o CallOutcome[T]) OK() bool {
	return o.Failure == nil
}

// Executor runs blocking operations under a RetryPolicy.
type Executor struct {
	sleeper func(time.Duration)
	logger  *slog.Logger
}

// ExecutorOption customizes the executor.
type ExecutorOption func(*Executor)

// WithSleeper overrides how backoff waits are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) ExecutorOption {
	return func(e *Executor) {
		e.sleeper = sleeper
	}
}

// WithExecutorLogger sets the logger used for retry diagnostics.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor constructs an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger)
	return e
}

// Call invokes op under policy, retrying retryable failures with exponential
// backoff. Repeated attempts repeat op's side effects.
func Call[T any](ctx context.Context, e *Executor, policy RetryPolicy, op func(ctx context.Context) (T, error)) CallOutcome[T] {
	if e == nil {
		e = NewExecutor()
	}
	logger := logging.FromContext(ctx, e.logger)
	maxAttempts := policy.attempts()

	var (
		zero    T
		lastErr error
		kind    domain.FailureKind
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value, err := runAttempt(ctx, policy.AttemptTimeout, op)
		if err == nil {
			return CallOutcome[T]{Value: value, Attempts: attempt}
		}
		lastErr = err
		kind = domain.KindOf(err)

		if !policy.IsRetryable(kind) || attempt == maxAttempts {
			return CallOutcome[T]{Value: zero, Attempts: attempt, Failure: &Failure{
				Kind:     kind,
				Message:  err.Error(),
				Attempts: attempt,
				Err:      err,
			}}
		}

		delay := policy.Backoff(attempt)
		logger.Warn("retrying after failure",
			logging.FieldAttempt, attempt,
			"kind", string(kind),
			"delay", delay,
			"error", err,
		)
		if err := e.sleep(ctx, delay); err != nil {
			return CallOutcome[T]{Value: zero, Attempts: attempt, Failure: &Failure{
				Kind:     domain.KindCanceled,
				Message:  err.Error(),
				Attempts: attempt,
				Err:      errors.Join(lastErr, err),
			}}
		}
	}

	// unreachable: the loop always returns on the final attempt
	return CallOutcome[T]{Attempts: maxAttempts, Failure: &Failure{Kind: kind, Message: "retry exhausted", Attempts: maxAttempts, Err: lastErr}}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	value, err := op(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		if domain.KindOf(err) != domain.KindTimeout {
			err = domain.NewError(domain.KindTimeout, "attempt", err)
		}
	}
	return value, err
}

func (e *Executor) sleep(ctx context.Context, delay time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if delay <= 0 {
		return nil
	}
	if e.sleeper != nil {
		e.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
