package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/metrics"
)

// Badge computes the app icon badge count: the total number of unseen
// occurrences across every source. Collapsed list rows expand back out
// here, so three new comments on one entry count three toward the badge
// and the badge is always at least the number of list rows.
func (s *Service) Badge(ctx context.Context, userID uuid.UUID) (int, error) {
	p, err := s.preparePass(ctx, userID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, ev := range s.runSources(ctx, p) {
		count += ev.Occurrences
	}
	return count, nil
}

// RefreshBadge recomputes the badge and delivers it to the user's
// devices. No-op when no pusher is configured.
func (s *Service) RefreshBadge(ctx context.Context, userID uuid.UUID) error {
	count, err := s.Badge(ctx, userID)
	if err != nil {
		return fmt.Errorf("compute badge: %w", err)
	}

	if s.pusher == nil {
		return nil
	}
	if err := s.pusher.PushBadge(ctx, userID, count); err != nil {
		return fmt.Errorf("push badge: %w", err)
	}

	s.logger.Debug("badge refreshed",
		zap.String("user_id", userID.String()),
		zap.Int("count", count),
	)
	metrics.RecordBadgeRefresh()
	return nil
}
