package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCoalesceWindow is how long a badge refresh claim is held.
// Posting, commenting and voting all fire refresh requests in quick
// succession; one recompute inside the window covers all of them.
const DefaultCoalesceWindow = 15 * time.Second

// Coalescer collapses bursts of badge refresh requests per user using
// SET NX claims, so a flurry of mutations produces a single recompute.
type Coalescer struct {
	client *Client
	logger *zap.Logger
	window time.Duration
}

// NewCoalescer creates a refresh coalescer.
func NewCoalescer(client *Client, logger *zap.Logger, window time.Duration) *Coalescer {
	if window <= 0 {
		window = DefaultCoalesceWindow
	}
	return &Coalescer{
		client: client,
		logger: logger,
		window: window,
	}
}

func (c *Coalescer) buildKey(userID uuid.UUID) string {
	return fmt.Sprintf("badge_refresh:%s", userID)
}

// Claim attempts to acquire the refresh slot for a user.
// Returns true if this caller should perform the refresh, false when a
// refresh was already claimed inside the window.
func (c *Coalescer) Claim(ctx context.Context, userID uuid.UUID) (bool, error) {
	set, err := c.client.rdb.SetNX(ctx, c.buildKey(userID), "1", c.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		c.logger.Debug("badge refresh coalesced",
			zap.String("user_id", userID.String()),
		)
	}

	return set, nil
}

// Release drops the claim early so the next mutation can trigger a fresh
// recompute immediately (used after the refresh completes).
func (c *Coalescer) Release(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.rdb.Del(ctx, c.buildKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
