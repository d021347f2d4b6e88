package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/scheduler"
)

// UserSource feeds the generators from the users and events tables.
type UserSource struct {
	db     *DB
	logger *zap.Logger
}

func NewUserSource(db *DB, logger *zap.Logger) *UserSource {
	return &UserSource{
		db:     db,
		logger: logger,
	}
}

func (s *UserSource) DigestSubscribers(ctx context.Context) ([]scheduler.User, error) {
	return s.subscribers(ctx, "daily_digest_enabled")
}

func (s *UserSource) AlertSubscribers(ctx context.Context) ([]scheduler.User, error) {
	return s.subscribers(ctx, "match_alerts_enabled")
}

// subscribers selects users with the given preference flag set. The column
// name is fixed at the call sites, never caller input.
func (s *UserSource) subscribers(ctx context.Context, flag string) ([]scheduler.User, error) {
	query := fmt.Sprintf(`
		SELECT id, timezone
		FROM users
		WHERE %s = TRUE
		ORDER BY id
	`, flag)

	rows, err := s.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var users []scheduler.User
	for rows.Next() {
		var u scheduler.User
		if err := rows.Scan(&u.ID, &u.Timezone); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return users, nil
}

func (s *UserSource) UpcomingEvents(ctx context.Context, horizon time.Duration) ([]scheduler.Event, error) {
	query := `
		SELECT id, name, starts_at
		FROM events
		WHERE starts_at > NOW() AND starts_at <= NOW() + $1
		ORDER BY starts_at
	`

	rows, err := s.db.Pool().Query(ctx, query, horizon)
	if err != nil {
		return nil, fmt.Errorf("query upcoming events: %w", err)
	}
	defer rows.Close()

	var events []scheduler.Event
	for rows.Next() {
		var ev scheduler.Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.StartsAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.StartsAt = ev.StartsAt.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
