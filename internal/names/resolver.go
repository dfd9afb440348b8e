// Package names resolves which concrete person's name a prompt variable
// substitutes to on a given date.
package names

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/db"
)

// DateFormat is the bare calendar day format used across the product.
const DateFormat = "2006-01-02"

// rotationEpoch anchors the fallback rotation. Every device computes the
// same day index from it, so the same prompt on the same date
// personalizes identically without any stored state.
var rotationEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// Store is the slice of the query layer the resolver needs.
type Store interface {
	NameUsages(ctx context.Context, promptID uuid.UUID, date, variableType string) ([]*db.NameUsage, error)
	RecentNameUsages(ctx context.Context, groupID uuid.UUID, variableType string, limit int) ([]*db.NameUsage, error)
	RecordNameUsage(ctx context.Context, nu *db.NameUsage) error
	GroupMembers(ctx context.Context, groupID uuid.UUID) ([]*db.GroupMember, error)
	Memorials(ctx context.Context, groupID uuid.UUID) ([]*db.Memorial, error)
}

// Resolver maps (prompt, date, group, variable type) to a name.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// NewResolver creates a name resolver.
func NewResolver(store Store, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
	}
}

// Resolve returns the name substituted into the prompt's variable on the
// given date. A stored usage row is authoritative; without one the
// deterministic rotation picks from the group's candidate pool. Returns
// ok=false when the pool is empty, in which case callers must treat the
// prompt as unavailable rather than render the raw variable token.
func (r *Resolver) Resolve(ctx context.Context, promptID uuid.UUID, date time.Time, groupID uuid.UUID, variableType string) (string, bool, error) {
	day := date.Format(DateFormat)

	usages, err := r.store.NameUsages(ctx, promptID, day, variableType)
	if err != nil {
		return "", false, fmt.Errorf("lookup name usage: %w", err)
	}

	if len(usages) > 0 {
		// Earliest created_at wins. The pool can change after the fact
		// (a memorial gets deleted, a member leaves), so the recorded
		// value beats recomputation.
		if len(usages) > 1 {
			r.logger.Warn("duplicate name usage records",
				zap.String("prompt_id", promptID.String()),
				zap.String("date_used", day),
				zap.String("variable_type", variableType),
				zap.Int("count", len(usages)),
			)
		}
		return usages[0].NameUsed, true, nil
	}

	pool, err := r.candidatePool(ctx, groupID, variableType)
	if err != nil {
		return "", false, err
	}
	if len(pool) == 0 {
		return "", false, nil
	}

	name := r.rotate(ctx, pool, date, groupID, variableType)

	// Persist the computed value so it stays authoritative even if the
	// pool changes later. Best effort: a write failure only costs us the
	// pin, not the resolution.
	usage := &db.NameUsage{
		ID:           uuid.New(),
		PromptID:     promptID,
		GroupID:      groupID,
		DateUsed:     day,
		VariableType: variableType,
		NameUsed:     name,
	}
	if err := r.store.RecordNameUsage(ctx, usage); err != nil {
		r.logger.Warn("failed to record name usage",
			zap.Error(err),
			zap.String("prompt_id", promptID.String()),
		)
	}

	return name, true, nil
}

func (r *Resolver) candidatePool(ctx context.Context, groupID uuid.UUID, variableType string) ([]string, error) {
	switch variableType {
	case db.VariableMemorialName:
		memorials, err := r.store.Memorials(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("load memorials: %w", err)
		}
		names := make([]string, 0, len(memorials))
		for _, m := range memorials {
			names = append(names, m.Name)
		}
		return names, nil

	case db.VariableMemberName:
		members, err := r.store.GroupMembers(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("load group members: %w", err)
		}
		names := make([]string, 0, len(members))
		for _, m := range members {
			if m.User != nil && m.User.Name != "" {
				names = append(names, m.User.Name)
			}
		}
		return names, nil

	default:
		return nil, fmt.Errorf("unknown variable type: %s", variableType)
	}
}

// rotate picks deterministically from the pool by day index, skipping
// names seen in the most recent pool-size usages to reduce short-term
// repeats. Filtering never empties the selection: when every candidate
// was recently used the full pool is used instead.
func (r *Resolver) rotate(ctx context.Context, pool []string, date time.Time, groupID uuid.UUID, variableType string) string {
	recent, err := r.store.RecentNameUsages(ctx, groupID, variableType, len(pool))
	if err != nil {
		r.logger.Warn("failed to load recent name usages, using full pool",
			zap.Error(err),
			zap.String("group_id", groupID.String()),
		)
		recent = nil
	}

	recentNames := make(map[string]bool, len(recent))
	for _, u := range recent {
		recentNames[u.NameUsed] = true
	}

	candidates := make([]string, 0, len(pool))
	for _, name := range pool {
		if !recentNames[name] {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		candidates = pool
	}

	// Dates before the epoch make the index negative; normalize so the
	// lookup stays in range for any client-supplied date.
	idx := DayIndex(date, groupID) % len(candidates)
	if idx < 0 {
		idx += len(candidates)
	}
	return candidates[idx]
}

// DayIndex is the whole days elapsed since the rotation epoch plus a
// per-group offset, so sibling groups don't all land on the same name.
func DayIndex(date time.Time, groupID uuid.UUID) int {
	day, _ := time.ParseInLocation(DateFormat, date.Format(DateFormat), time.UTC)
	diff := int(day.Sub(rotationEpoch).Hours() / 24)

	offset := 0
	for _, b := range groupID {
		offset += int(b)
	}
	return diff + offset
}

// HasVariable reports whether the question text carries the given
// variable token.
func HasVariable(question, variableType string) bool {
	return strings.Contains(question, "{"+variableType+"}")
}

// ExpandPrompt substitutes the resolved name into the question text.
func ExpandPrompt(question, variableType, name string) string {
	return strings.ReplaceAll(question, "{"+variableType+"}", name)
}
