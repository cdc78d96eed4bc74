// Package jobs hands work and notifications to systems outside the request path.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/platform/textutil"
)

// eventMessage is the JSON body of a published event.
type eventMessage struct {
	Type       string            `json:"type"`
	Subject    string            `json:"subject"`
	OccurredAt time.Time         `json:"occurredAt"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// PubSubEventPublisher publishes domain events to a Pub/Sub topic. The event
// type is also set as a message attribute so subscribers can filter on it.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a publisher for topic.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{topic: topic, marshal: json.Marshal}, nil
}

// Publish blocks until the server acknowledges the message.
func (p *PubSubEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	if event.Type == "" {
		return errors.New("pubsub event publisher: event type is required")
	}

	attrs := textutil.CleanAttributes(event.Attributes)
	data, err := p.marshal(eventMessage{
		Type:       event.Type,
		Subject:    event.Subject,
		OccurredAt: event.OccurredAt.UTC(),
		Attributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	msgAttrs := make(map[string]string, len(attrs)+2)
	for k, v := range attrs {
		msgAttrs[k] = v
	}
	msgAttrs["type"] = event.Type
	if event.Subject != "" {
		msgAttrs["subject"] = event.Subject
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: msgAttrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}
