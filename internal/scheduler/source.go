package scheduler

import (
	"context"
	"time"
)

// User is a notification recipient as the generators see it.
type User struct {
	ID       string
	Timezone string // IANA name, e.g. "Europe/London"
}

// Event is an upcoming match the alert generator schedules against.
type Event struct {
	ID       string
	Name     string
	StartsAt time.Time // UTC
}

// UserSource supplies the generators with recipients and upcoming events.
type UserSource interface {
	// DigestSubscribers returns users opted in to the daily digest.
	DigestSubscribers(ctx context.Context) ([]User, error)

	// AlertSubscribers returns users opted in to match alerts.
	AlertSubscribers(ctx context.Context) ([]User, error)

	// UpcomingEvents returns events starting within the horizon.
	UpcomingEvents(ctx context.Context, horizon time.Duration) ([]Event, error)
}

// StaticSource is a fixed in-memory UserSource, used when no database is
// configured and in tests.
type StaticSource struct {
	Digest []User
	Alerts []User
	Events []Event
}

func (s *StaticSource) DigestSubscribers(ctx context.Context) ([]User, error) {
	return s.Digest, nil
}

func (s *StaticSource) AlertSubscribers(ctx context.Context) ([]User, error) {
	return s.Alerts, nil
}

func (s *StaticSource) UpcomingEvents(ctx context.Context, horizon time.Duration) ([]Event, error) {
	now := time.Now().UTC()
	cutoff := now.Add(horizon)
	var out []Event
	for _, ev := range s.Events {
		if ev.StartsAt.After(now) && ev.StartsAt.Before(cutoff) {
			out = append(out, ev)
		}
	}
	return out, nil
}
