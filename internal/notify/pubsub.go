package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Event types set in the "event_type" message attribute.
const (
	EventDepartureUpdate = "departure_update"
	EventSuggestions     = "alternative_suggestions"
)

// Publisher sends a message to a topic and waits for the server ack.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) error
}

// PubSubPublisher publishes to Google Cloud Pub/Sub topics.
type PubSubPublisher struct {
	client *pubsub.Client

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewPubSubPublisher creates a publisher for projectID.
func NewPubSubPublisher(ctx context.Context, projectID string) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &PubSubPublisher{
		client:     client,
		publishers: make(map[string]*pubsub.Publisher),
	}, nil
}

// Publish sends data to topic and blocks until it is accepted.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) error {
	result := p.publisher(topic).Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

func (p *PubSubPublisher) publisher(topic string) *pubsub.Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()

	pub, ok := p.publishers[topic]
	if !ok {
		pub = p.client.Publisher(topic)
		p.publishers[topic] = pub
	}
	return pub
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	for _, pub := range p.publishers {
		pub.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}

// PubSubConfig holds configuration for the Pub/Sub notifier.
type PubSubConfig struct {
	Publisher Publisher

	// DepartureTopic receives DepartureUpdate events.
	DepartureTopic string

	// SuggestionTopic receives SuggestionBatch events. Empty disables suggestion publishing.
	SuggestionTopic string

	Logger zerolog.Logger
}

// PubSubNotifier publishes engine events as JSON messages.
type PubSubNotifier struct {
	publisher       Publisher
	departureTopic  string
	suggestionTopic string
	logger          zerolog.Logger
}

// NewPubSubNotifier creates a notifier backed by cfg.Publisher.
func NewPubSubNotifier(cfg PubSubConfig) *PubSubNotifier {
	return &PubSubNotifier{
		publisher:       cfg.Publisher,
		departureTopic:  cfg.DepartureTopic,
		suggestionTopic: cfg.SuggestionTopic,
		logger:          cfg.Logger,
	}
}

// NotifyDepartureUpdate publishes a departure update keyed by user.
func (n *PubSubNotifier) NotifyDepartureUpdate(ctx context.Context, update DepartureUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encoding departure update: %w", err)
	}

	attrs := map[string]string{
		"event_type": EventDepartureUpdate,
		"user_id":    update.UserID,
		"setting_id": update.SettingID,
	}
	if err := n.publisher.Publish(ctx, n.departureTopic, data, attrs); err != nil {
		return err
	}

	n.logger.Debug().
		Str("user_id", update.UserID).
		Str("setting_id", update.SettingID).
		Int("travel_minutes", update.EstimatedTravelMinutes).
		Msg("departure update published")
	return nil
}

// PublishSuggestions publishes a batch of alternatives. Empty batches are skipped.
func (n *PubSubNotifier) PublishSuggestions(ctx context.Context, batch SuggestionBatch) error {
	if n.suggestionTopic == "" || len(batch.Suggestions) == 0 {
		return nil
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding suggestions: %w", err)
	}

	attrs := map[string]string{
		"event_type": EventSuggestions,
		"user_id":    batch.UserID,
		"route_id":   batch.RouteID,
	}
	if err := n.publisher.Publish(ctx, n.suggestionTopic, data, attrs); err != nil {
		return err
	}

	n.logger.Debug().
		Str("route_id", batch.RouteID).
		Int("suggestions", len(batch.Suggestions)).
		Msg("suggestions published")
	return nil
}

// Ensure PubSubPublisher implements Publisher.
var _ Publisher = (*PubSubPublisher)(nil)
