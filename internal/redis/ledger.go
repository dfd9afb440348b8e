package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/metrics"
)

// VisitKind enumerates the entity kinds tracked by the visit ledger.
type VisitKind string

const (
	VisitEntry          VisitKind = "entry"
	VisitGroup          VisitKind = "group"
	VisitQuestion       VisitKind = "question"
	VisitDeck           VisitKind = "deck"
	VisitBirthdayCard   VisitKind = "birthdayCard"
	VisitCustomQuestion VisitKind = "customQuestion"
)

// ParseVisitKind validates a kind coming off the wire.
func ParseVisitKind(s string) (VisitKind, error) {
	switch VisitKind(s) {
	case VisitEntry, VisitGroup, VisitQuestion, VisitDeck, VisitBirthdayCard, VisitCustomQuestion:
		return VisitKind(s), nil
	}
	return "", fmt.Errorf("unknown visit kind: %s", s)
}

// Composite key builders, one per kind. The question/deck/card keys fold
// in every ID that scopes the visit so re-opening the same screen for a
// different date or deck never collides.

func QuestionKey(groupID uuid.UUID, date string, promptID uuid.UUID) string {
	return fmt.Sprintf("%s_%s_%s", groupID, date, promptID)
}

func DeckKey(groupID, deckID uuid.UUID) string {
	return fmt.Sprintf("%s_%s", groupID, deckID)
}

func BirthdayCardKey(groupID, birthdayUserID uuid.UUID, birthdayDate string) string {
	return fmt.Sprintf("%s_%s_%s", groupID, birthdayUserID, birthdayDate)
}

func CustomQuestionKey(groupID uuid.UUID, date string) string {
	return fmt.Sprintf("%s_%s", groupID, date)
}

// Ledger records when a user last viewed or actioned an entity. Entries
// never expire; a later visit simply overwrites the timestamp
// (last-write-wins, no cross-device coordination beyond that).
type Ledger struct {
	client *Client
	logger *zap.Logger
}

// NewLedger creates a visit ledger backed by Redis.
func NewLedger(client *Client, logger *zap.Logger) *Ledger {
	return &Ledger{
		client: client,
		logger: logger,
	}
}

func (l *Ledger) visitKey(userID uuid.UUID, kind VisitKind, key string) string {
	return fmt.Sprintf("visits:%s:%s:%s", userID, kind, key)
}

func (l *Ledger) checkedKey(userID uuid.UUID) string {
	return fmt.Sprintf("visits:%s:last_checked", userID)
}

// LastVisited returns the last visit timestamp for an entity, or
// ok=false when the entity was never visited.
func (l *Ledger) LastVisited(ctx context.Context, userID uuid.UUID, kind VisitKind, key string) (time.Time, bool, error) {
	val, err := l.client.rdb.Get(ctx, l.visitKey(userID, kind, key)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		// A corrupt value is treated as never-visited rather than
		// blocking the whole aggregation pass.
		l.logger.Warn("invalid visit timestamp",
			zap.String("kind", string(kind)),
			zap.String("key", key),
			zap.String("value", val),
		)
		return time.Time{}, false, nil
	}

	return ts, true, nil
}

// MarkVisited stamps the entity with the given time, overwriting any
// previous visit.
func (l *Ledger) MarkVisited(ctx context.Context, userID uuid.UUID, kind VisitKind, key string, at time.Time) error {
	val := at.UTC().Format(time.RFC3339Nano)
	if err := l.client.rdb.Set(ctx, l.visitKey(userID, kind, key), val, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	metrics.RecordLedgerOp("mark_visited", string(kind))
	return nil
}

// LastChecked returns the global fallback timestamp stamped when the
// user last opened the notification list, or ok=false when never.
func (l *Ledger) LastChecked(ctx context.Context, userID uuid.UUID) (time.Time, bool, error) {
	val, err := l.client.rdb.Get(ctx, l.checkedKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		l.logger.Warn("invalid last checked timestamp", zap.String("value", val))
		return time.Time{}, false, nil
	}

	return ts, true, nil
}

// MarkChecked stamps the global fallback timestamp.
func (l *Ledger) MarkChecked(ctx context.Context, userID uuid.UUID, at time.Time) error {
	val := at.UTC().Format(time.RFC3339Nano)
	if err := l.client.rdb.Set(ctx, l.checkedKey(userID), val, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	metrics.RecordLedgerOp("mark_checked", "global")
	return nil
}
