package circuitbreaker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pusher mirrors the notify.BadgePusher interface to avoid circular imports.
type Pusher interface {
	PushBadge(ctx context.Context, userID uuid.UUID, count int) error
}

// ProtectedPusher wraps any Pusher with a CircuitBreaker.
// When the push service starts failing, the circuit opens and badge
// refreshes fail fast instead of piling up behind a dead endpoint.
//
// This is the Decorator pattern — transparently adds resilience
// without modifying the underlying pusher implementation.
type ProtectedPusher struct {
	pusher  Pusher
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedPusher wraps a pusher with circuit breaker protection.
func NewProtectedPusher(pusher Pusher, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedPusher {
	return &ProtectedPusher{
		pusher:  pusher,
		breaker: breaker,
		logger:  logger,
	}
}

// PushBadge attempts a badge delivery through the circuit breaker.
// If the circuit is open, returns ErrCircuitOpen immediately (fail fast).
// If the push succeeds, records success. If it fails, records failure.
func (p *ProtectedPusher) PushBadge(ctx context.Context, userID uuid.UUID, count int) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected request — failing fast",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("user_id", userID.String()),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s pusher unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	err := p.pusher.PushBadge(ctx, userID, count)
	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.config.Name),
			zap.Error(err),
		)
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

// Breaker returns the underlying circuit breaker for metrics/monitoring.
func (p *ProtectedPusher) Breaker() *CircuitBreaker {
	return p.breaker
}
