package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"github.com/gatekeylabs/gatekey/internal/app/repository"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// AttemptConsumer drains attempt records from JetStream into Postgres.
type AttemptConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	repo   repository.AttemptRepository
}

// NewAttemptConsumer creates a new attempt-record consumer.
func NewAttemptConsumer(js nats.JetStreamContext, logger *zap.Logger, repo repository.AttemptRepository) *AttemptConsumer {
	return &AttemptConsumer{js: js, logger: logger, repo: repo}
}

// Start ensures the stream and durable consumer exist, then begins
// consuming in the background.
func (c *AttemptConsumer) Start() error {
	_, err := c.js.StreamInfo(model.AttemptStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.AttemptStreamName,
			Subjects: []string{model.AttemptStreamSubject},
			MaxBytes: model.AttemptStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.AttemptStreamName, model.AttemptConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.AttemptStreamName, &nats.ConsumerConfig{
			Durable:   model.AttemptConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.AttemptStreamSubject, model.AttemptConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

func (c *AttemptConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			c.logger.Error("failed to fetch attempt records", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var attempt model.AccessAttempt
			if err := json.Unmarshal(msg.Data, &attempt); err != nil {
				c.logger.Error("failed to unmarshal attempt record", zap.Error(err))
				msg.Nak()
				continue
			}

			if err := c.repo.Create(ctx, &attempt); err != nil {
				c.logger.Error("failed to store attempt record",
					zap.String("id", attempt.ID),
					zap.String("code", attempt.CodeUsed),
					zap.Error(err))
				msg.Nak()
				continue
			}

			c.logger.Debug("attempt record stored",
				zap.String("id", attempt.ID),
				zap.String("code", attempt.CodeUsed),
				zap.String("outcome", string(attempt.Outcome)),
				zap.Time("attempted_at", attempt.AttemptedAt),
			)

			msg.Ack()
		}
	}
}
