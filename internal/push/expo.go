// Package push delivers badge counts to user devices through the Expo
// push service.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/db"
	"github.com/thegoodtimes/pulse/internal/metrics"
)

// DefaultEndpoint is the public Expo push API.
const DefaultEndpoint = "https://exp.host/--/api/v2/push/send"

// TokenStore loads the registered device tokens for a user.
type TokenStore interface {
	PushTokens(ctx context.Context, userID uuid.UUID) ([]*db.PushToken, error)
}

// ExpoPusher sends silent badge-only pushes via Expo. Devices whose
// token has notifications disabled are skipped; with no enabled device
// the push is a no-op, not an error.
type ExpoPusher struct {
	endpoint string
	client   *http.Client
	tokens   TokenStore
	logger   *zap.Logger
}

type ExpoConfig struct {
	Endpoint string        // Defaults to DefaultEndpoint
	Timeout  time.Duration // Default timeout for push requests
}

// NewExpoPusher creates an Expo badge pusher.
func NewExpoPusher(tokens TokenStore, logger *zap.Logger, cfg ExpoConfig) *ExpoPusher {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &ExpoPusher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		tokens:   tokens,
		logger:   logger,
	}
}

// expoMessage is one entry of the Expo push request body. Badge-only
// updates carry no title or body so nothing is shown to the user.
type expoMessage struct {
	To    string `json:"to"`
	Badge int    `json:"badge"`
}

type expoResponse struct {
	Data []struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
	} `json:"data"`
}

// PushBadge sets the app icon badge on every enabled device the user
// has registered.
func (p *ExpoPusher) PushBadge(ctx context.Context, userID uuid.UUID, count int) error {
	tokens, err := p.tokens.PushTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("load push tokens: %w", err)
	}

	var messages []expoMessage
	for _, t := range tokens {
		if !t.NotificationsEnabled {
			continue
		}
		messages = append(messages, expoMessage{To: t.Token, Badge: count})
	}
	if len(messages) == 0 {
		p.logger.Debug("no enabled push tokens, skipping badge push",
			zap.String("user_id", userID.String()),
		)
		return nil
	}

	body, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.RecordBadgePush("transport_error")
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordBadgePush("http_error")
		return fmt.Errorf("push service returned status %d: %s", resp.StatusCode, string(respBytes))
	}

	// Expo returns a per-message ticket; a partial failure is reported
	// but does not fail the whole push.
	var parsed expoResponse
	if err := json.Unmarshal(respBytes, &parsed); err == nil {
		failed := 0
		for _, ticket := range parsed.Data {
			if ticket.Status != "ok" {
				failed++
				p.logger.Warn("push ticket rejected",
					zap.String("user_id", userID.String()),
					zap.String("status", ticket.Status),
					zap.String("message", ticket.Message),
				)
			}
		}
		if failed == len(parsed.Data) && failed > 0 {
			metrics.RecordBadgePush("rejected")
			return fmt.Errorf("push service rejected all %d messages", failed)
		}
	}

	metrics.RecordBadgePush("ok")
	p.logger.Debug("badge pushed",
		zap.String("user_id", userID.String()),
		zap.Int("badge", count),
		zap.Int("devices", len(messages)),
	)
	return nil
}
