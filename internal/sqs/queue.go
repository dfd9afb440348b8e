// Package sqs carries badge refresh requests between the API and the
// worker. Anything that changes what a user should see (a new comment,
// a cleared list, a new prompt) enqueues a refresh; the worker
// recomputes the badge and pushes it.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// Message is a badge refresh request on the queue.
type Message struct {
	UserID     string `json:"user_id"`
	Reason     string `json:"reason"`
	EnqueuedAt int64  `json:"enqueued_at"`
}

// Producer sends badge refresh requests to SQS.
type Producer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewProducer creates a new SQS producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg)

	logger.Info("sqs producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Producer{
		client:   client,
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// EnqueueRefresh requests an asynchronous badge recompute for a user.
// Returns the message ID for tracking.
func (p *Producer) EnqueueRefresh(ctx context.Context, userID uuid.UUID, reason string) (string, error) {
	msg := Message{
		UserID:     userID.String(),
		Reason:     reason,
		EnqueuedAt: time.Now().UnixNano(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to send message to sqs",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return "", fmt.Errorf("sqs send failed: %w", err)
	}

	return *result.MessageId, nil
}

// Close closes the SQS producer.
func (p *Producer) Close() {
	// AWS SDK v2 clients don't require explicit Close()
}

// Consumer reads badge refresh requests from SQS.
type Consumer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewConsumer creates a new SQS consumer.
func NewConsumer(ctx context.Context, cfg Config, logger *zap.Logger) (*Consumer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg)

	logger.Info("sqs consumer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Consumer{
		client:   client,
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// ReceiveMessage retrieves a message from SQS with long polling.
func (c *Consumer) ReceiveMessage(ctx context.Context) (*Message, string, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	}

	result, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("sqs receive failed: %w", err)
	}

	if len(result.Messages) == 0 {
		return nil, "", nil
	}

	msgData := result.Messages[0]

	var msg Message
	if err := json.Unmarshal([]byte(*msgData.Body), &msg); err != nil {
		c.logger.Error("failed to unmarshal message", zap.Error(err))
		return nil, "", fmt.Errorf("invalid message format: %w", err)
	}

	return &msg, *msgData.ReceiptHandle, nil
}

// DeleteMessage removes a message from SQS after successful processing.
func (c *Consumer) DeleteMessage(ctx context.Context, receiptHandle string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	}

	_, err := c.client.DeleteMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("sqs delete failed: %w", err)
	}

	return nil
}

// Close closes the SQS consumer.
func (c *Consumer) Close() {
	// AWS SDK v2 clients don't require explicit Close()
}
