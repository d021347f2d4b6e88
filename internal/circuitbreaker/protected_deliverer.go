package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/job"
)

// Deliverer mirrors the delivery.Deliverer interface to avoid circular imports.
type Deliverer interface {
	Deliver(ctx context.Context, n *job.Notification) error
	SupportsChannel(channel string) bool
}

// ProtectedDeliverer wraps a delivery transport with a CircuitBreaker.
// While the circuit is open every call returns ErrCircuitOpen immediately,
// so a dead transport marks its jobs failed fast instead of blocking the
// dispatch tick on a string of doomed calls.
type ProtectedDeliverer struct {
	deliverer Deliverer
	breaker   *CircuitBreaker
	logger    *zap.Logger
}

// NewProtectedDeliverer wraps a transport with circuit breaker protection.
func NewProtectedDeliverer(deliverer Deliverer, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedDeliverer {
	return &ProtectedDeliverer{
		deliverer: deliverer,
		breaker:   breaker,
		logger:    logger,
	}
}

// Deliver attempts a delivery through the circuit breaker.
func (p *ProtectedDeliverer) Deliver(ctx context.Context, n *job.Notification) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected delivery",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("job_id", n.ID.String()),
			zap.String("channel", n.Payload.Channel),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s transport unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	err := p.deliverer.Deliver(ctx, n)
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

// SupportsChannel delegates to the underlying transport.
func (p *ProtectedDeliverer) SupportsChannel(channel string) bool {
	return p.deliverer.SupportsChannel(channel)
}

// Breaker returns the underlying circuit breaker for the status surface.
func (p *ProtectedDeliverer) Breaker() *CircuitBreaker {
	return p.breaker
}
