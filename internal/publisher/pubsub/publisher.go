// Package pubsub publishes run events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Publisher sends JSON-encoded payloads to Pub/Sub topics. Topic handles
// are cached per topic name so repeated runs reuse the same batcher.
type Publisher struct {
	client *gcppubsub.Client
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*gcppubsub.Topic
}

// New connects to Pub/Sub for the given project.
func New(ctx context.Context, projectID string, logger *zap.Logger) (*Publisher, error) {
	if projectID == "" {
		return nil, fmt.Errorf("pubsub: project id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := gcppubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub: creating client: %w", err)
	}
	return &Publisher{
		client: client,
		logger: logger,
		topics: make(map[string]*gcppubsub.Topic),
	}, nil
}

// Publish marshals payload to JSON and publishes it, blocking until the
// server acknowledges the message. Returns the server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("pubsub: marshaling payload: %w", err)
	}

	result := p.topic(topic).Publish(ctx, &gcppubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("pubsub: publishing to %s: %w", topic, err)
	}

	p.logger.Debug("published message",
		zap.String("topic", topic),
		zap.String("message_id", id),
		zap.Int("bytes", len(data)))
	return id, nil
}

// Close stops all topic batchers and releases the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = make(map[string]*gcppubsub.Topic)
	p.mu.Unlock()
	return p.client.Close()
}

func (p *Publisher) topic(name string) *gcppubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}
