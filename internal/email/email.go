// Package email sends transactional email through Resend.
package email

import (
	"context"
	"fmt"
	"html"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

type Config struct {
	APIKey string
	From   string // Defaults to onboarding@resend.dev
}

// Service sends product email. Everything here is best-effort from the
// caller's point of view: a failed email never blocks the action that
// triggered it.
type Service struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

// New creates an email service.
func New(cfg Config, logger *zap.Logger) *Service {
	from := cfg.From
	if from == "" {
		from = "onboarding@resend.dev"
	}

	return &Service{
		client: resend.NewClient(cfg.APIKey),
		from:   from,
		logger: logger,
	}
}

// Send delivers one HTML email.
func (s *Service) Send(ctx context.Context, to, subject, htmlBody string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		zap.String("id", sent.Id),
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}

// SendBirthdayCardReady tells the birthday person their group's card has
// been published.
func (s *Service) SendBirthdayCardReady(ctx context.Context, to, birthdayUserName, groupName string) error {
	subject, body := cardReadyContent(birthdayUserName, groupName)
	return s.Send(ctx, to, subject, body)
}

// cardReadyContent builds the card-ready email. Names are user-supplied
// and must be escaped before landing in the HTML body.
func cardReadyContent(birthdayUserName, groupName string) (subject, body string) {
	subject = fmt.Sprintf("Your birthday card from %s is ready!", groupName)
	body = fmt.Sprintf(
		"<p>Happy birthday, %s!</p><p>Everyone in %s signed a card for you. Open the app to read it.</p>",
		html.EscapeString(birthdayUserName), html.EscapeString(groupName),
	)
	return subject, body
}
