package resilience

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

// Observer is notified about retries and breaker transitions (metrics).
type Observer interface {
	RetryScheduled(operation string)
	BreakerStateChanged(operation, from, to string)
}

type Option func(*Executor)

func WithObserver(observer Observer) Option {
	return func(e *Executor) { e.observer = observer }
}

// WithClassifier replaces Classify, mostly for tests.
func WithClassifier(classify func(error) Outcome) Option {
	return func(e *Executor) { e.classify = classify }
}

// Executor runs named operations against postgres and NATS with bounded
// retries and one circuit breaker per operation name.
type Executor struct {
	policy   Policy
	classify func(error) Outcome
	observer Observer
	sleep    func(context.Context, time.Duration) error

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		policy:   policy.withDefaults(),
		classify: Classify,
		sleep:    sleepContext,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs fn under the retry loop and breaker of operation. A nil Executor
// runs fn exactly once. An open breaker is reported as ErrUnavailable.
func (e *Executor) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	if e == nil {
		return fn(ctx)
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if !e.policy.Breaker.Enabled {
		return e.attempt(ctx, op, fn)
	}

	_, err := e.breaker(op).Execute(func() (struct{}, error) {
		return struct{}{}, e.attempt(ctx, op, fn)
	})
	if IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrUnavailable, op, err)
	}
	return err
}

// Query is Do for operations that return a value.
func Query[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (e *Executor) attempt(ctx context.Context, op string, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("retry_recovered", "operation", op, "attempts", attempt)
			}
			return nil
		}
		if attempt >= e.policy.MaxAttempts || !e.classify(err).Retry {
			return err
		}

		wait := e.policy.Backoff.delay(attempt)
		slog.Warn("retry_scheduled",
			"operation", op,
			"attempt", attempt,
			"max_attempts", e.policy.MaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if e.observer != nil {
			e.observer.RetryScheduled(op)
		}
		if e.sleep(ctx, wait) != nil {
			return err
		}
	}
}

func (e *Executor) breaker(op string) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[op]; ok {
		return cb
	}
	bp := e.policy.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: bp.HalfOpenCalls,
		Timeout:     bp.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bp.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bp.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return !e.classify(err).Trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			if e.observer != nil {
				e.observer.BreakerStateChanged(name, from.String(), to.String())
			}
		},
	})
	e.breakers[op] = cb
	return cb
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
