// Package notify derives the in-app notification list and the app icon
// badge count from the relational store and the visit ledger. Nothing
// here is persisted; every call recomputes from scratch.
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

// Store is the slice of the query layer the aggregator consumes.
type Store interface {
	UserGroups(ctx context.Context, userID uuid.UUID) ([]*db.Group, error)
	DailyPromptForDate(ctx context.Context, groupID uuid.UUID, date string) (*db.DailyPrompt, error)
	UserEntryForDate(ctx context.Context, groupID, userID uuid.UUID, date string) (*db.Entry, error)
	EntriesByAuthor(ctx context.Context, userID uuid.UUID) ([]*db.Entry, error)
	EntryByID(ctx context.Context, entryID uuid.UUID) (*db.Entry, error)
	CommentsOnEntrySince(ctx context.Context, entryID, excludeUserID uuid.UUID, since time.Time) ([]*db.Comment, error)
	CommentsByUser(ctx context.Context, userID uuid.UUID) ([]*db.Comment, error)
	GroupEntriesSince(ctx context.Context, groupID, excludeUserID uuid.UUID, since time.Time) ([]*db.Entry, error)
	PendingDeckVotes(ctx context.Context, groupID, userID uuid.UUID) ([]*db.DeckVote, error)
	MentionsForUser(ctx context.Context, userID uuid.UUID) ([]*db.Mention, error)
	OpenBirthdayCards(ctx context.Context, userID uuid.UUID) ([]*db.BirthdayCard, error)
	CustomQuestionWindows(ctx context.Context, userID uuid.UUID, date string) ([]*db.CustomQuestionWindow, error)
}

// Ledger is the visit ledger surface the aggregator reads and stamps.
type Ledger interface {
	LastVisited(ctx context.Context, userID uuid.UUID, kind redis.VisitKind, key string) (time.Time, bool, error)
	MarkVisited(ctx context.Context, userID uuid.UUID, kind redis.VisitKind, key string, at time.Time) error
	LastChecked(ctx context.Context, userID uuid.UUID) (time.Time, bool, error)
	MarkChecked(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// BadgePusher delivers a computed badge count to the user's devices.
// Implementations are permission-gated: no enabled device means no-op.
type BadgePusher interface {
	PushBadge(ctx context.Context, userID uuid.UUID, count int) error
}

// Service computes notifications and badge counts for users.
type Service struct {
	store  Store
	ledger Ledger
	pusher BadgePusher // nil disables badge pushes
	clock  Clock
	logger *zap.Logger
}

// NewService creates the aggregation service.
func NewService(store Store, ledger Ledger, pusher BadgePusher, clock Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = SystemClock
	}
	return &Service{
		store:  store,
		ledger: ledger,
		pusher: pusher,
		clock:  clock,
		logger: logger,
	}
}

// pass carries the state shared by every source within one aggregation
// call: the user's groups, today's date, and the global fallback
// timestamp. Built once per call, read-only afterwards.
type pass struct {
	userID      uuid.UUID
	today       string
	todayStart  time.Time
	lastChecked time.Time // zero when never checked
	groups      []*db.Group
	groupNames  map[uuid.UUID]string
}

func (s *Service) preparePass(ctx context.Context, userID uuid.UUID) (*pass, error) {
	groups, err := s.store.UserGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user groups: %w", err)
	}

	now := s.clock.Now()
	today := now.Format("2006-01-02")
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var lastChecked time.Time
	if ts, ok, err := s.ledger.LastChecked(ctx, userID); err != nil {
		// Treated as never-checked; worst case is an overcount, never a
		// missing pass.
		s.logger.Warn("failed to read last checked timestamp",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
	} else if ok {
		lastChecked = ts
	}

	names := make(map[uuid.UUID]string, len(groups))
	for _, g := range groups {
		names[g.ID] = g.Name
	}

	return &pass{
		userID:      userID,
		today:       today,
		todayStart:  todayStart,
		lastChecked: lastChecked,
		groups:      groups,
		groupNames:  names,
	}, nil
}

func (p *pass) groupName(groupID uuid.UUID) string {
	if name, ok := p.groupNames[groupID]; ok {
		return name
	}
	return "your group"
}

// checkSince returns the threshold for "new since" comparisons on an
// entity: the later of its visit timestamp and the global last-checked
// fallback. A ledger read failure degrades to the fallback so one bad
// key never hides the rest of the pass.
func (s *Service) checkSince(ctx context.Context, p *pass, kind redis.VisitKind, key string) time.Time {
	since := p.lastChecked

	visited, ok, err := s.ledger.LastVisited(ctx, p.userID, kind, key)
	if err != nil {
		s.logger.Warn("failed to read visit timestamp",
			zap.Error(err),
			zap.String("kind", string(kind)),
			zap.String("key", key),
		)
		return since
	}
	if ok && visited.After(since) {
		since = visited
	}

	return since
}
