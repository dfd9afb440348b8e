package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/db"
	"github.com/thegoodtimes/pulse/internal/redis"
)

// Each source derives events independently. All of them share the same
// predicates between the list and the badge: a source emits collapsed
// events whose Occurrences field carries the raw item count.

// newQuestionEvents emits one event per group whose prompt for today the
// user has not answered. The list drops these for single-group users
// (they see the question on open anyway); the badge counts them all.
func (s *Service) newQuestionEvents(ctx context.Context, p *pass) ([]Event, error) {
	// Opening the notification list today already surfaced the question.
	if !p.lastChecked.IsZero() && !p.lastChecked.Before(p.todayStart) {
		return nil, nil
	}

	var events []Event
	for _, group := range p.groups {
		dp, err := s.store.DailyPromptForDate(ctx, group.ID, p.today)
		if err != nil {
			s.logger.Error("failed to check new question",
				zap.Error(err),
				zap.String("group_id", group.ID.String()),
			)
			continue
		}
		if dp == nil {
			continue
		}
		if dp.UserID != nil && *dp.UserID != p.userID {
			// User-specific prompt (birthday) aimed at someone else.
			continue
		}

		entry, err := s.store.UserEntryForDate(ctx, group.ID, p.userID, p.today)
		if err != nil {
			s.logger.Error("failed to check user entry",
				zap.Error(err),
				zap.String("group_id", group.ID.String()),
			)
			continue
		}
		if entry != nil {
			continue
		}

		// Explicitly marked answered/seen in the ledger.
		qkey := redis.QuestionKey(group.ID, p.today, dp.PromptID)
		if _, visited, err := s.ledger.LastVisited(ctx, p.userID, redis.VisitQuestion, qkey); err == nil && visited {
			continue
		}

		events = append(events, Event{
			ID:          fmt.Sprintf("new_question_%s_%s", group.ID, p.today),
			Kind:        KindNewQuestion,
			GroupID:     group.ID,
			GroupName:   group.Name,
			Occurrences: 1,
			Date:        p.today,
			CreatedAt:   dp.CreatedAt,
		})
	}

	return events, nil
}

// replyToEntryEvents collapses new comments on the user's own entries
// into one event per entry.
func (s *Service) replyToEntryEvents(ctx context.Context, p *pass) ([]Event, error) {
	entries, err := s.store.EntriesByAuthor(ctx, p.userID)
	if err != nil {
		return nil, fmt.Errorf("load user entries: %w", err)
	}

	var events []Event
	for _, entry := range entries {
		since := s.checkSince(ctx, p, redis.VisitEntry, entry.ID.String())

		comments, err := s.store.CommentsOnEntrySince(ctx, entry.ID, p.userID, since)
		if err != nil {
			s.logger.Error("failed to check replies",
				zap.Error(err),
				zap.String("entry_id", entry.ID.String()),
			)
			continue
		}
		if len(comments) == 0 {
			continue
		}

		mostRecent := comments[0]
		entryID := entry.ID

		ev := Event{
			Kind:        KindReplyToEntry,
			GroupID:     entry.GroupID,
			GroupName:   p.groupName(entry.GroupID),
			Occurrences: len(comments),
			EntryID:     &entryID,
			CreatedAt:   mostRecent.CreatedAt,
		}

		commentID := mostRecent.ID
		ev.CommentID = &commentID
		if len(comments) == 1 {
			ev.ID = fmt.Sprintf("reply_to_entry_%s", mostRecent.ID)
			ev.CommenterName = commenterName(mostRecent.User)
			ev.CommenterAvatarURL = commenterAvatar(mostRecent.User)
		} else {
			ev.ID = fmt.Sprintf("reply_to_entry_%s_aggregate", entry.ID)
			ev.CommenterName = fmt.Sprintf("%d people", len(comments))
			ev.CommenterAvatarURL = commenterAvatar(mostRecent.User)
		}

		events = append(events, ev)
	}

	return events, nil
}

// replyToThreadEvents collapses new replies in threads the user has
// commented in. Entries the user authored are skipped; those are
// already covered by replyToEntryEvents with a broader threshold.
func (s *Service) replyToThreadEvents(ctx context.Context, p *pass) ([]Event, error) {
	own, err := s.store.CommentsByUser(ctx, p.userID)
	if err != nil {
		return nil, fmt.Errorf("load user comments: %w", err)
	}

	// Earliest own comment per entry: replies only count after the user
	// joined the thread.
	firstCommentAt := make(map[uuid.UUID]time.Time, len(own))
	var entryIDs []uuid.UUID
	for _, c := range own {
		if _, seen := firstCommentAt[c.EntryID]; !seen {
			firstCommentAt[c.EntryID] = c.CreatedAt
			entryIDs = append(entryIDs, c.EntryID)
		}
	}

	var events []Event
	for _, entryID := range entryIDs {
		entry, err := s.store.EntryByID(ctx, entryID)
		if err != nil {
			s.logger.Error("failed to load thread entry",
				zap.Error(err),
				zap.String("entry_id", entryID.String()),
			)
			continue
		}
		if entry == nil || entry.UserID == p.userID {
			continue
		}

		since := s.checkSince(ctx, p, redis.VisitEntry, entryID.String())
		if at := firstCommentAt[entryID]; at.After(since) {
			since = at
		}

		comments, err := s.store.CommentsOnEntrySince(ctx, entryID, p.userID, since)
		if err != nil {
			s.logger.Error("failed to check thread replies",
				zap.Error(err),
				zap.String("entry_id", entryID.String()),
			)
			continue
		}
		if len(comments) == 0 {
			continue
		}

		mostRecent := comments[0]
		eid := entryID

		ev := Event{
			Kind:            KindReplyToThread,
			GroupID:         entry.GroupID,
			GroupName:       p.groupName(entry.GroupID),
			Occurrences:     len(comments),
			EntryID:         &eid,
			EntryAuthorName: commenterName(entry.Author),
			CreatedAt:       mostRecent.CreatedAt,
		}

		commentID := mostRecent.ID
		ev.CommentID = &commentID
		if len(comments) == 1 {
			ev.ID = fmt.Sprintf("reply_to_thread_%s", mostRecent.ID)
			ev.CommenterName = commenterName(mostRecent.User)
			ev.CommenterAvatarURL = commenterAvatar(mostRecent.User)
		} else {
			ev.ID = fmt.Sprintf("reply_to_thread_%s_aggregate", entryID)
			ev.CommenterName = fmt.Sprintf("%d people", len(comments))
			ev.CommenterAvatarURL = commenterAvatar(mostRecent.User)
		}

		events = append(events, ev)
	}

	return events, nil
}

// newAnswersEvents collapses entries by others per group into one event
// naming the distinct answerers.
func (s *Service) newAnswersEvents(ctx context.Context, p *pass) ([]Event, error) {
	var events []Event
	for _, group := range p.groups {
		since := s.checkSince(ctx, p, redis.VisitGroup, group.ID.String())

		entries, err := s.store.GroupEntriesSince(ctx, group.ID, p.userID, since)
		if err != nil {
			s.logger.Error("failed to check new answers",
				zap.Error(err),
				zap.String("group_id", group.ID.String()),
			)
			continue
		}
		if len(entries) == 0 {
			continue
		}

		seen := make(map[uuid.UUID]bool)
		var answererNames []string
		for _, e := range entries {
			if e.Author == nil || e.Author.Name == "" || seen[e.UserID] {
				continue
			}
			seen[e.UserID] = true
			answererNames = append(answererNames, e.Author.Name)
		}
		if len(answererNames) == 0 {
			continue
		}

		mostRecent := entries[0]
		events = append(events, Event{
			ID:            fmt.Sprintf("new_answers_%s_%s", group.ID, mostRecent.ID),
			Kind:          KindNewAnswers,
			GroupID:       group.ID,
			GroupName:     group.Name,
			Occurrences:   len(entries),
			AnswererNames: answererNames,
			CreatedAt:     mostRecent.CreatedAt,
		})
	}

	return events, nil
}

// deckVoteEvents emits one event per pending deck vote the user has not
// cast and not marked voted.
func (s *Service) deckVoteEvents(ctx context.Context, p *pass) ([]Event, error) {
	var events []Event
	for _, group := range p.groups {
		votes, err := s.store.PendingDeckVotes(ctx, group.ID, p.userID)
		if err != nil {
			s.logger.Error("failed to check pending deck votes",
				zap.Error(err),
				zap.String("group_id", group.ID.String()),
			)
			continue
		}

		for _, vote := range votes {
			key := redis.DeckKey(vote.GroupID, vote.DeckID)
			since := s.checkSince(ctx, p, redis.VisitDeck, key)
			if !vote.CreatedAt.After(since) {
				continue
			}

			deckID := vote.DeckID
			events = append(events, Event{
				ID:            fmt.Sprintf("deck_vote_requested_%s_%s", vote.GroupID, vote.DeckID),
				Kind:          KindDeckVoteRequested,
				GroupID:       vote.GroupID,
				GroupName:     group.Name,
				Occurrences:   1,
				DeckID:        &deckID,
				DeckName:      vote.DeckName,
				RequesterName: vote.RequesterName,
				CreatedAt:     vote.CreatedAt,
			})
		}
	}

	return events, nil
}

// mentionEvents surfaces server-recorded mentions until the referenced
// entry is visited.
func (s *Service) mentionEvents(ctx context.Context, p *pass) ([]Event, error) {
	mentions, err := s.store.MentionsForUser(ctx, p.userID)
	if err != nil {
		return nil, fmt.Errorf("load mentions: %w", err)
	}

	var events []Event
	for _, m := range mentions {
		since := s.checkSince(ctx, p, redis.VisitEntry, m.EntryID.String())
		if !m.CreatedAt.After(since) {
			continue
		}

		entryID := m.EntryID
		events = append(events, Event{
			ID:              fmt.Sprintf("mentioned_in_entry_%s", m.ID),
			Kind:            KindMentionedInEntry,
			GroupID:         m.GroupID,
			GroupName:       p.groupName(m.GroupID),
			Occurrences:     1,
			EntryID:         &entryID,
			MentionedByName: m.MentionedByName,
			CreatedAt:       m.CreatedAt,
		})
	}

	return events, nil
}

// birthdayCardEvents surfaces open cards the user can sign.
func (s *Service) birthdayCardEvents(ctx context.Context, p *pass) ([]Event, error) {
	cards, err := s.store.OpenBirthdayCards(ctx, p.userID)
	if err != nil {
		return nil, fmt.Errorf("load birthday cards: %w", err)
	}

	var events []Event
	for _, card := range cards {
		key := redis.BirthdayCardKey(card.GroupID, card.BirthdayUserID, card.BirthdayDate)
		since := s.checkSince(ctx, p, redis.VisitBirthdayCard, key)
		if !card.CreatedAt.After(since) {
			continue
		}

		events = append(events, Event{
			ID:               fmt.Sprintf("birthday_card_%s", card.ID),
			Kind:             KindBirthdayCard,
			GroupID:          card.GroupID,
			GroupName:        p.groupName(card.GroupID),
			Occurrences:      1,
			BirthdayUserName: card.BirthdayUserName,
			BirthdayDate:     card.BirthdayDate,
			CreatedAt:        card.CreatedAt,
		})
	}

	return events, nil
}

// customQuestionEvents surfaces open custom-question windows for today.
func (s *Service) customQuestionEvents(ctx context.Context, p *pass) ([]Event, error) {
	windows, err := s.store.CustomQuestionWindows(ctx, p.userID, p.today)
	if err != nil {
		return nil, fmt.Errorf("load custom question windows: %w", err)
	}

	var events []Event
	for _, w := range windows {
		key := redis.CustomQuestionKey(w.GroupID, w.Date)
		since := s.checkSince(ctx, p, redis.VisitCustomQuestion, key)
		if !w.CreatedAt.After(since) {
			continue
		}

		events = append(events, Event{
			ID:          fmt.Sprintf("custom_question_%s_%s", w.GroupID, w.Date),
			Kind:        KindCustomQuestionOpportunity,
			GroupID:     w.GroupID,
			GroupName:   p.groupName(w.GroupID),
			Occurrences: 1,
			Date:        w.Date,
			CreatedAt:   w.CreatedAt,
		})
	}

	return events, nil
}

func commenterName(u *db.User) string {
	if u == nil || u.Name == "" {
		return "Someone"
	}
	return u.Name
}

func commenterAvatar(u *db.User) *string {
	if u == nil {
		return nil
	}
	return u.AvatarURL
}
