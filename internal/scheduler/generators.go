package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/job"
	"github.com/lalithlochan/pitchside/internal/metrics"
)

// generateDailyDigests schedules one digest per subscribed user at the next
// occurrence of the digest hour in the user's own timezone. If that hour has
// already passed locally today, the digest rolls to tomorrow.
func (s *Scheduler) generateDailyDigests(ctx context.Context) {
	users, err := s.source.DigestSubscribers(ctx)
	if err != nil {
		s.logger.Error("digest generation failed to list subscribers", zap.Error(err))
		return
	}

	created := 0
	for _, u := range users {
		sendAt, loc, err := s.nextDigestInstant(u)
		if err != nil {
			s.logger.Warn("skipping digest for user with bad timezone",
				zap.String("user_id", u.ID),
				zap.String("timezone", u.Timezone),
				zap.Error(err),
			)
			continue
		}

		key := fmt.Sprintf("digest:%s:%s", u.ID, sendAt.In(loc).Format("2006-01-02"))
		if s.guard != nil {
			ok, err := s.guard.Reserve(ctx, key)
			if err != nil {
				s.logger.Error("dedup reservation failed, scheduling anyway",
					zap.String("key", key),
					zap.Error(err),
				)
			} else if !ok {
				metrics.RecordDedupSuppressed()
				continue
			}
		}

		n := job.New(u.ID, job.TypeDailyDigest, sendAt, u.Timezone, job.Payload{
			Channel: job.ChannelPush,
			Title:   "Your daily predictions are ready",
			Body:    "Today's top picks and match insights are waiting for you.",
		})
		if err := s.ScheduleNotification(ctx, n); err != nil {
			s.logger.Error("failed to schedule digest",
				zap.String("user_id", u.ID),
				zap.Error(err),
			)
			s.releaseReservation(ctx, key)
			continue
		}
		created++
	}

	s.logger.Info("daily digest generation complete",
		zap.Int("subscribers", len(users)),
		zap.Int("scheduled", created),
	)
}

// releaseReservation gives a dedup key back after a failed enqueue so the
// next cadence can retry instead of waiting out the TTL.
func (s *Scheduler) releaseReservation(ctx context.Context, key string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, key); err != nil {
		s.logger.Error("failed to release dedup reservation",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// nextDigestInstant resolves the digest hour in the user's timezone and
// returns the corresponding UTC instant. Resolution happens exactly once,
// here; the stored instant is never recomputed even if tz rules change.
func (s *Scheduler) nextDigestInstant(u User) (time.Time, *time.Location, error) {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("load timezone %q: %w", u.Timezone, err)
	}

	local := s.now().In(loc)
	sendAt := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.DigestHour, 0, 0, 0, loc)
	if !sendAt.After(local) {
		sendAt = sendAt.AddDate(0, 0, 1)
	}
	return sendAt.UTC(), loc, nil
}

// generateMatchAlerts schedules a pre-kickoff alert for every subscribed user
// and upcoming event. An alert whose send instant is not strictly in the
// future is skipped, never delivered late.
func (s *Scheduler) generateMatchAlerts(ctx context.Context) {
	events, err := s.source.UpcomingEvents(ctx, s.cfg.AlertLookahead)
	if err != nil {
		s.logger.Error("alert generation failed to list events", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	users, err := s.source.AlertSubscribers(ctx)
	if err != nil {
		s.logger.Error("alert generation failed to list subscribers", zap.Error(err))
		return
	}

	created := 0
	now := s.now().UTC()
	for _, ev := range events {
		alertAt := ev.StartsAt.UTC().Add(-s.cfg.AlertLead)
		if !alertAt.After(now) {
			continue
		}

		for _, u := range users {
			key := fmt.Sprintf("alert:%s:%s", u.ID, ev.ID)
			if s.guard != nil {
				ok, err := s.guard.Reserve(ctx, key)
				if err != nil {
					s.logger.Error("dedup reservation failed, scheduling anyway",
						zap.String("key", key),
						zap.Error(err),
					)
				} else if !ok {
					metrics.RecordDedupSuppressed()
					continue
				}
			}

			n := job.New(u.ID, job.TypeMatchAlert, alertAt, u.Timezone, job.Payload{
				Channel: job.ChannelPush,
				Title:   "Match starting soon",
				Body:    fmt.Sprintf("%s kicks off in %d minutes.", ev.Name, int(s.cfg.AlertLead.Minutes())),
				Data:    map[string]string{"event_id": ev.ID},
			})
			if err := s.ScheduleNotification(ctx, n); err != nil {
				s.logger.Error("failed to schedule match alert",
					zap.String("user_id", u.ID),
					zap.String("event_id", ev.ID),
					zap.Error(err),
				)
				s.releaseReservation(ctx, key)
				continue
			}
			created++
		}
	}

	if created > 0 {
		s.logger.Info("match alert generation complete",
			zap.Int("events", len(events)),
			zap.Int("scheduled", created),
		)
	}
}
