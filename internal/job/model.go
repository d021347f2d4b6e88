// Package job defines the notification job model and the queue it lives in.
package job

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status of a notification job. Transitions are one-way:
// pending -> delivered or pending -> failed, never reversed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Type classifies what kind of notification a job carries.
type Type string

const (
	TypeDailyDigest      Type = "daily_digest"
	TypeMatchAlert       Type = "match_alert"
	TypePredictionResult Type = "prediction_result"
	TypeValueAlert       Type = "value_alert"
	TypeGeneric          Type = "generic"
)

// Delivery channel constants, carried in the payload. The scheduler never
// looks at these; the delivery layer routes on them.
const (
	ChannelPush    = "push"
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
	ChannelQueue   = "queue"
)

// ErrNotPending is returned when a terminal transition is attempted on a job
// that has already reached a terminal state.
var ErrNotPending = errors.New("job is not pending")

// Payload is the opaque content handed to the delivery adapter. Title and
// body are composed upstream; Data carries channel-specific fields such as a
// destination email address or webhook URL.
type Payload struct {
	Channel string            `json:"channel"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
}

// Notification is a single scheduled notification awaiting or having
// completed delivery.
type Notification struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	Type         Type       `json:"type"`
	Payload      Payload    `json:"payload"`
	ScheduledFor time.Time  `json:"scheduled_for"` // absolute UTC instant, never recomputed
	Timezone     string     `json:"timezone"`      // retained for audit/display only
	Status       Status     `json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// New creates a pending notification scheduled for the given UTC instant.
func New(userID string, t Type, scheduledFor time.Time, timezone string, payload Payload) *Notification {
	return &Notification{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         t,
		Payload:      payload,
		ScheduledFor: scheduledFor.UTC(),
		Timezone:     timezone,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}

// Terminal reports whether the job has reached a terminal state.
func (n *Notification) Terminal() bool {
	return n.Status != StatusPending
}

// CompletedAt is the timestamp used by retention pruning: SentAt when the job
// was delivered, ScheduledFor as the fallback for failed jobs.
func (n *Notification) CompletedAt() time.Time {
	if n.SentAt != nil {
		return *n.SentAt
	}
	return n.ScheduledFor
}

// markDelivered and markFailed enforce the one-way transition at the model
// level; stores call these rather than mutating fields directly.

func (n *Notification) markDelivered(at time.Time) error {
	if n.Status != StatusPending {
		return ErrNotPending
	}
	at = at.UTC()
	n.Status = StatusDelivered
	n.SentAt = &at
	return nil
}

// No failure timestamp is tracked; ScheduledFor serves as the retention
// fallback for failed jobs.
func (n *Notification) markFailed(cause string) error {
	if n.Status != StatusPending {
		return ErrNotPending
	}
	n.Status = StatusFailed
	n.ErrorMessage = &cause
	return nil
}

// clone returns a copy safe to hand out of the store.
func (n *Notification) clone() *Notification {
	c := *n
	if n.SentAt != nil {
		t := *n.SentAt
		c.SentAt = &t
	}
	if n.ErrorMessage != nil {
		s := *n.ErrorMessage
		c.ErrorMessage = &s
	}
	if n.Payload.Data != nil {
		c.Payload.Data = make(map[string]string, len(n.Payload.Data))
		for k, v := range n.Payload.Data {
			c.Payload.Data[k] = v
		}
	}
	return &c
}
