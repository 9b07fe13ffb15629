// Package events publishes the two analytics events the optimizer and
// dispatcher emit after a successful operation: context.optimized and
// dispatch.completed. Publishing never blocks or affects the caller's
// result — a write failure is logged and swallowed.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	TopicContextOptimized = "context.optimized"
	TopicDispatchCompleted = "dispatch.completed"
)

// ContextOptimizedEvent is published after a successful Optimizer.Optimize
// call (SPEC_FULL.md §4.4/§4.9).
type ContextOptimizedEvent struct {
	ContextID            string `json:"contextId"`
	SelectedContentCount int    `json:"selectedContentCount"`
	TotalTokens          int    `json:"totalTokens"`
	CompressionApplied   bool   `json:"compressionApplied"`
}

// DispatchCompletedEvent is published after every dispatch attempt,
// success or exhausted failover (SPEC_FULL.md §4.8).
type DispatchCompletedEvent struct {
	ModelID    string `json:"modelId"`
	Success    bool   `json:"success"`
	LatencyMS  int64  `json:"latencyMs"`
	TokensUsed int    `json:"tokensUsed"`
}

// writer is the subset of *kafka.Writer the publisher needs, so tests can
// substitute a fake.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits optimizer/dispatcher analytics events to Kafka. A
// Publisher constructed with no brokers is valid and a no-op, matching
// the optional-dependency pattern the rest of the domain stack uses when
// a feature's environment variable is unset.
type Publisher struct {
	w writer
}

// NewPublisher creates a Publisher backed by an asynchronous Kafka writer
// over brokers that balances messages across partitions by least bytes.
// Passing an empty broker list returns a Publisher whose
// Publish* methods are no-ops.
func NewPublisher(brokers []string) *Publisher {
	if len(brokers) == 0 {
		return &Publisher{}
	}
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			Async:        true,
		},
	}
}

// Close releases the underlying writer's connections.
func (p *Publisher) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

// PublishContextOptimized emits a context.optimized event. Errors are
// logged, not returned: event delivery never gates the optimizer response.
func (p *Publisher) PublishContextOptimized(ctx context.Context, evt ContextOptimizedEvent) {
	p.publish(ctx, TopicContextOptimized, evt.ContextID, evt)
}

// PublishDispatchCompleted emits a dispatch.completed event.
func (p *Publisher) PublishDispatchCompleted(ctx context.Context, evt DispatchCompletedEvent) {
	p.publish(ctx, TopicDispatchCompleted, evt.ModelID, evt)
}

func (p *Publisher) publish(ctx context.Context, topic, key string, payload any) {
	if p == nil || p.w == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("marshal event")
		return
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("publish event")
	}
}
