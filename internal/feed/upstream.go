package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/onnwee/feedrank/internal/item"
)

// Default guard settings.
const (
	DefaultUpstreamTimeout = 2 * time.Second
	breakerName            = "signal-store"
)

// GuardConfig configures a GuardedStore.
type GuardConfig struct {
	// Timeout bounds every signal store call.
	Timeout time.Duration

	// MinRequests is the number of calls in an interval before the breaker may trip.
	MinRequests uint32

	// FailureRatio opens the breaker once this share of calls in an interval failed.
	FailureRatio float64

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultGuardConfig returns the default guard settings.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:      DefaultUpstreamTimeout,
		MinRequests:  10,
		FailureRatio: 0.6,
		OpenTimeout:  30 * time.Second,
	}
}

// GuardedStore wraps a SignalStore with a per-call timeout and a circuit
// breaker. Every failure it returns wraps ErrUpstreamUnavailable.
type GuardedStore struct {
	next    SignalStore
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[any]
	metrics *Metrics
}

// NewGuardedStore wraps next.
func NewGuardedStore(next SignalStore, cfg GuardConfig, metrics *Metrics) *GuardedStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultUpstreamTimeout
	}
	metrics.SetBreakerState(gobreaker.StateClosed)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("signal store circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
			metrics.SetBreakerState(to)
		},
		// A caller giving up is not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &GuardedStore{
		next:    next,
		timeout: cfg.Timeout,
		cb:      cb,
		metrics: metrics,
	}
}

// State returns the current breaker state.
func (g *GuardedStore) State() gobreaker.State {
	return g.cb.State()
}

func (g *GuardedStore) call(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	result, err := g.cb.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(ctx)
	})

	switch {
	case err == nil:
		g.metrics.IncUpstreamRequest("success")
		return result, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.metrics.IncUpstreamRequest("rejected")
	case errors.Is(err, context.DeadlineExceeded):
		g.metrics.IncUpstreamRequest("timeout")
	default:
		g.metrics.IncUpstreamRequest("failure")
	}
	return nil, upstreamError(op, err)
}

// GetUserLikedTags implements SignalStore.
func (g *GuardedStore) GetUserLikedTags(ctx context.Context, userID string) ([]string, error) {
	res, err := g.call(ctx, "get user liked tags", func(ctx context.Context) (any, error) {
		return g.next.GetUserLikedTags(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

// GetActiveItems implements SignalStore.
func (g *GuardedStore) GetActiveItems(ctx context.Context, limit int, before time.Time) ([]*item.Item, error) {
	res, err := g.call(ctx, "get active items", func(ctx context.Context) (any, error) {
		return g.next.GetActiveItems(ctx, limit, before)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*item.Item), nil
}

// GetMaxEngagementCounter implements SignalStore.
func (g *GuardedStore) GetMaxEngagementCounter(ctx context.Context, itemIDs []string) (int64, error) {
	res, err := g.call(ctx, "get max engagement counter", func(ctx context.Context) (any, error) {
		return g.next.GetMaxEngagementCounter(ctx, itemIDs)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// GetUserLikeSet implements SignalStore.
func (g *GuardedStore) GetUserLikeSet(ctx context.Context, userID string, itemIDs []string) (map[string]bool, error) {
	res, err := g.call(ctx, "get user like set", func(ctx context.Context) (any, error) {
		return g.next.GetUserLikeSet(ctx, userID, itemIDs)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]bool), nil
}

// upstreamError wraps err so that it matches ErrUpstreamUnavailable.
func upstreamError(op string, err error) error {
	if errors.Is(err, ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
}
