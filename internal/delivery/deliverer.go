// Package delivery implements the adapters the scheduler hands due jobs to.
// The scheduler only sees the Deliverer interface; routing to a concrete
// transport happens here, keyed on the payload channel.
package delivery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/job"
)

// Deliverer is the unified interface for all notification transports.
// Implementations: push (SNS topic), email (SES), webhooks, queue hand-off (SQS).
type Deliverer interface {
	Deliver(ctx context.Context, n *job.Notification) error
	SupportsChannel(channel string) bool
}

// MultiDeliverer routes notifications to the appropriate channel transport.
type MultiDeliverer struct {
	deliverers []Deliverer
	logger     *zap.Logger
}

// NewMultiDeliverer creates a router over multiple underlying transports.
func NewMultiDeliverer(logger *zap.Logger, deliverers ...Deliverer) *MultiDeliverer {
	return &MultiDeliverer{
		deliverers: deliverers,
		logger:     logger,
	}
}

// Deliver routes the notification to the first transport claiming its channel.
func (m *MultiDeliverer) Deliver(ctx context.Context, n *job.Notification) error {
	for _, d := range m.deliverers {
		if d.SupportsChannel(n.Payload.Channel) {
			m.logger.Debug("routing notification to transport",
				zap.String("channel", n.Payload.Channel),
				zap.String("job_id", n.ID.String()),
			)
			return d.Deliver(ctx, n)
		}
	}

	return fmt.Errorf("no transport for channel: %s", n.Payload.Channel)
}

// SupportsChannel checks if any underlying transport supports the channel.
func (m *MultiDeliverer) SupportsChannel(channel string) bool {
	for _, d := range m.deliverers {
		if d.SupportsChannel(channel) {
			return true
		}
	}
	return false
}

// LogDeliverer logs notifications instead of sending them (development mode).
type LogDeliverer struct {
	logger *zap.Logger
}

func NewLogDeliverer(logger *zap.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(ctx context.Context, n *job.Notification) error {
	d.logger.Info("logging notification (development mode)",
		zap.String("id", n.ID.String()),
		zap.String("user_id", n.UserID),
		zap.String("type", string(n.Type)),
		zap.String("channel", n.Payload.Channel),
		zap.String("title", n.Payload.Title),
	)
	return nil
}

func (d *LogDeliverer) SupportsChannel(channel string) bool {
	// LogDeliverer accepts every channel for development/testing
	return true
}
