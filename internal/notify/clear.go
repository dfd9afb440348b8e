package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/redis"
)

// MarkChecked stamps the global last-checked timestamp, called when the
// user opens the notification list. Today's question stops notifying
// and the fallback threshold for every source advances; per-entity
// visit stamps are untouched.
func (s *Service) MarkChecked(ctx context.Context, userID uuid.UUID) error {
	if err := s.ledger.MarkChecked(ctx, userID, s.clock.Now()); err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}
	return nil
}

// ClearAll marks every current notification as seen: it stamps the
// global last-checked timestamp and then visit-stamps each entity that
// could be feeding an event. The global stamp alone already empties the
// list; the per-entity stamps keep the ledger precise so later visits
// and clears compose.
func (s *Service) ClearAll(ctx context.Context, userID uuid.UUID) error {
	now := s.clock.Now()

	if err := s.ledger.MarkChecked(ctx, userID, now); err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}

	p, err := s.preparePass(ctx, userID)
	if err != nil {
		// The global stamp already landed, which is what the list reads
		// first. Report the partial clear instead of failing it.
		s.logger.Warn("clear all: per-entity stamping skipped",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil
	}

	stamp := func(kind redis.VisitKind, key string) {
		if err := s.ledger.MarkVisited(ctx, userID, kind, key, now); err != nil {
			s.logger.Warn("clear all: failed to stamp visit",
				zap.Error(err),
				zap.String("kind", string(kind)),
				zap.String("key", key),
			)
		}
	}

	if entries, err := s.store.EntriesByAuthor(ctx, userID); err != nil {
		s.logger.Warn("clear all: failed to load authored entries", zap.Error(err))
	} else {
		for _, e := range entries {
			stamp(redis.VisitEntry, e.ID.String())
		}
	}

	if comments, err := s.store.CommentsByUser(ctx, userID); err != nil {
		s.logger.Warn("clear all: failed to load user comments", zap.Error(err))
	} else {
		seen := make(map[uuid.UUID]bool, len(comments))
		for _, c := range comments {
			if seen[c.EntryID] {
				continue
			}
			seen[c.EntryID] = true
			stamp(redis.VisitEntry, c.EntryID.String())
		}
	}

	for _, group := range p.groups {
		stamp(redis.VisitGroup, group.ID.String())

		dp, err := s.store.DailyPromptForDate(ctx, group.ID, p.today)
		if err != nil {
			s.logger.Warn("clear all: failed to load daily prompt",
				zap.Error(err),
				zap.String("group_id", group.ID.String()),
			)
			continue
		}
		if dp != nil {
			stamp(redis.VisitQuestion, redis.QuestionKey(group.ID, p.today, dp.PromptID))
		}
	}

	for _, group := range p.groups {
		votes, err := s.store.PendingDeckVotes(ctx, group.ID, userID)
		if err != nil {
			s.logger.Warn("clear all: failed to load deck votes",
				zap.Error(err),
				zap.String("group_id", group.ID.String()),
			)
			continue
		}
		for _, vote := range votes {
			stamp(redis.VisitDeck, redis.DeckKey(vote.GroupID, vote.DeckID))
		}
	}

	if cards, err := s.store.OpenBirthdayCards(ctx, userID); err != nil {
		s.logger.Warn("clear all: failed to load birthday cards", zap.Error(err))
	} else {
		for _, card := range cards {
			stamp(redis.VisitBirthdayCard, redis.BirthdayCardKey(card.GroupID, card.BirthdayUserID, card.BirthdayDate))
		}
	}

	if windows, err := s.store.CustomQuestionWindows(ctx, userID, p.today); err != nil {
		s.logger.Warn("clear all: failed to load custom question windows", zap.Error(err))
	} else {
		for _, w := range windows {
			stamp(redis.VisitCustomQuestion, redis.CustomQuestionKey(w.GroupID, w.Date))
		}
	}

	return nil
}
