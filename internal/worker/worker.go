// Package worker drains the badge refresh queue: for each request it
// recomputes the user's badge and pushes it to their devices.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/metrics"
	"github.com/thegoodtimes/pulse/internal/sqs"
)

// Queue is the message source the worker drains.
type Queue interface {
	ReceiveMessage(ctx context.Context) (*sqs.Message, string, error)
	DeleteMessage(ctx context.Context, receiptHandle string) error
}

// Refresher recomputes and delivers one user's badge.
type Refresher interface {
	RefreshBadge(ctx context.Context, userID uuid.UUID) error
}

// Claimer collapses duplicate refresh requests per user.
type Claimer interface {
	Claim(ctx context.Context, userID uuid.UUID) (bool, error)
	Release(ctx context.Context, userID uuid.UUID) error
}

type Worker struct {
	queue     Queue
	refresher Refresher
	claimer   Claimer // nil disables coalescing
	config    Config
	logger    *zap.Logger
}

type Config struct {
	// ErrorBackoff is how long to pause after a receive error before
	// polling again.
	ErrorBackoff time.Duration
}

func New(queue Queue, refresher Refresher, claimer Claimer, cfg Config, logger *zap.Logger) *Worker {
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}

	return &Worker{
		queue:     queue,
		refresher: refresher,
		claimer:   claimer,
		config:    cfg,
		logger:    logger,
	}
}

// Start runs the receive loop until the context is cancelled. SQS long
// polling provides the idle wait; only receive errors back off.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("badge refresh worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		default:
		}

		msg, receipt, err := w.queue.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return
			}
			w.logger.Error("failed to receive message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.config.ErrorBackoff):
			}
			continue
		}
		if msg == nil {
			continue
		}

		w.processMessage(ctx, msg, receipt)
	}
}

func (w *Worker) processMessage(ctx context.Context, msg *sqs.Message, receipt string) {
	metrics.SetSQSMessagesInFlight(1)
	defer metrics.SetSQSMessagesInFlight(0)

	userID, err := uuid.Parse(msg.UserID)
	if err != nil {
		// Unparseable messages would redeliver forever; drop them.
		w.logger.Error("dropping message with invalid user id",
			zap.Error(err),
			zap.String("user_id", msg.UserID),
		)
		w.deleteMessage(ctx, receipt)
		return
	}

	if w.claimer != nil {
		claimed, err := w.claimer.Claim(ctx, userID)
		if err != nil {
			// Claim state unknown; refresh anyway. An extra recompute is
			// cheaper than a stale badge.
			w.logger.Warn("failed to claim refresh slot",
				zap.Error(err),
				zap.String("user_id", userID.String()),
			)
		} else if !claimed {
			metrics.RecordRefreshCoalesced()
			w.deleteMessage(ctx, receipt)
			return
		}
	}

	if err := w.refresher.RefreshBadge(ctx, userID); err != nil {
		w.logger.Error("failed to refresh badge",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.String("reason", msg.Reason),
		)
		// Leave the message; the visibility timeout redelivers it.
		w.releaseClaim(ctx, userID)
		return
	}

	w.logger.Debug("badge refresh processed",
		zap.String("user_id", userID.String()),
		zap.String("reason", msg.Reason),
	)
	w.deleteMessage(ctx, receipt)
	w.releaseClaim(ctx, userID)
}

func (w *Worker) deleteMessage(ctx context.Context, receipt string) {
	if err := w.queue.DeleteMessage(ctx, receipt); err != nil {
		w.logger.Error("failed to delete message", zap.Error(err))
	}
}

func (w *Worker) releaseClaim(ctx context.Context, userID uuid.UUID) {
	if w.claimer == nil {
		return
	}
	if err := w.claimer.Release(ctx, userID); err != nil {
		w.logger.Warn("failed to release refresh claim",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
	}
}
