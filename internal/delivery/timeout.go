package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lalithlochan/pitchside/internal/job"
)

// ErrDeliveryTimeout is returned when a single delivery call exceeds the cap.
var ErrDeliveryTimeout = errors.New("delivery timed out")

// TimeoutDeliverer caps every delivery call with a hard deadline. A hung
// transport call would otherwise hold the dispatch tick's in-flight guard
// forever; a timeout is treated exactly like a delivery failure.
type TimeoutDeliverer struct {
	next    Deliverer
	timeout time.Duration
}

func NewTimeoutDeliverer(next Deliverer, timeout time.Duration) *TimeoutDeliverer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TimeoutDeliverer{next: next, timeout: timeout}
}

func (d *TimeoutDeliverer) Deliver(ctx context.Context, n *job.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.next.Deliver(ctx, n)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrDeliveryTimeout, d.timeout)
		}
		return ctx.Err()
	}
}

func (d *TimeoutDeliverer) SupportsChannel(channel string) bool {
	return d.next.SupportsChannel(channel)
}
