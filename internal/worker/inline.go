package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/metrics"
)

// InlineEnqueuer runs refresh requests in-process when no queue is
// configured (local development, single-node deploys). It satisfies the
// same enqueue surface as the SQS producer.
type InlineEnqueuer struct {
	refresher Refresher
	claimer   Claimer // nil disables coalescing
	timeout   time.Duration
	logger    *zap.Logger
}

func NewInlineEnqueuer(refresher Refresher, claimer Claimer, logger *zap.Logger) *InlineEnqueuer {
	return &InlineEnqueuer{
		refresher: refresher,
		claimer:   claimer,
		timeout:   30 * time.Second,
		logger:    logger,
	}
}

// EnqueueRefresh recomputes the badge in a background goroutine. The
// request context is not reused: the refresh should outlive the HTTP
// request that triggered it.
func (e *InlineEnqueuer) EnqueueRefresh(ctx context.Context, userID uuid.UUID, reason string) (string, error) {
	if e.claimer != nil {
		claimed, err := e.claimer.Claim(ctx, userID)
		if err != nil {
			e.logger.Warn("failed to claim refresh slot",
				zap.Error(err),
				zap.String("user_id", userID.String()),
			)
		} else if !claimed {
			metrics.RecordRefreshCoalesced()
			return "coalesced", nil
		}
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		if err := e.refresher.RefreshBadge(bgCtx, userID); err != nil {
			e.logger.Error("inline badge refresh failed",
				zap.Error(err),
				zap.String("user_id", userID.String()),
				zap.String("reason", reason),
			)
		}
		if e.claimer != nil {
			if err := e.claimer.Release(bgCtx, userID); err != nil {
				e.logger.Warn("failed to release refresh claim",
					zap.Error(err),
					zap.String("user_id", userID.String()),
				)
			}
		}
	}()

	return "inline", nil
}
