package health

import (
	"context"
	"errors"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrBreakerOpen is reported while the signal store breaker rejects calls.
var ErrBreakerOpen = errors.New("signal store circuit breaker is open")

// BreakerStater reports a circuit breaker's state.
type BreakerStater interface {
	State() gobreaker.State
}

// BreakerChecker reports unready while the guarded signal store is shedding
// load, so the instance is taken out of rotation instead of failing pages.
type BreakerChecker struct {
	breaker BreakerStater
}

// NewBreakerChecker creates a checker over breaker.
func NewBreakerChecker(breaker BreakerStater) *BreakerChecker {
	return &BreakerChecker{breaker: breaker}
}

// HealthCheck fails only when the breaker is open. A half-open breaker is
// probing and still admits traffic.
func (b *BreakerChecker) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.breaker.State() == gobreaker.StateOpen {
		return ErrBreakerOpen
	}
	return nil
}
