package push

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogPusher logs badge pushes instead of delivering them (for
// testing/development).
type LogPusher struct {
	logger *zap.Logger
}

func NewLogPusher(logger *zap.Logger) *LogPusher {
	return &LogPusher{logger: logger}
}

func (p *LogPusher) PushBadge(ctx context.Context, userID uuid.UUID, count int) error {
	p.logger.Info("badge push",
		zap.String("user_id", userID.String()),
		zap.Int("badge", count),
	)
	return nil
}
