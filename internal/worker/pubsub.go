package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Outcome is what the handler does with a message after processing.
type Outcome int

// Message outcomes.
const (
	Ack Outcome = iota
	Nack
)

// PubSubHandler receives job messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	processor        *Processor
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Processor        *Processor
	Logger           zerolog.Logger

	// MaxOutstanding bounds concurrently delivered messages. Default: 10
	MaxOutstanding int
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	maxOutstanding := cfg.MaxOutstanding
	if maxOutstanding <= 0 {
		maxOutstanding = 10
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		processor:        cfg.Processor,
		logger:           cfg.Logger,
	}, nil
}

// Start blocks receiving messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		if Process(ctx, h.processor, msg.Data, logger) == Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Process decodes and runs one message body. Malformed and unknown messages
// are acked so they are not redelivered; failed jobs are nacked.
func Process(ctx context.Context, p *Processor, data []byte, logger zerolog.Logger) Outcome {
	logger.Debug().Msg("received job message")

	msg, err := DecodeJob(data)
	if err != nil {
		logger.Error().Err(err).Msg("dropping malformed message")
		return Ack
	}

	result, err := p.Handle(ctx, msg)
	switch {
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return Ack
	case err != nil && result == nil:
		logger.Error().Err(err).Str("job_type", msg.JobType).Msg("dropping invalid job")
		return Ack
	case err != nil:
		logger.Error().Err(err).Str("job_type", msg.JobType).Msg("job failed")
		return Nack
	}

	logger.Info().
		Str("job_type", msg.JobType).
		Dur("duration", result.Duration).
		Msg("job completed successfully")
	return Ack
}
