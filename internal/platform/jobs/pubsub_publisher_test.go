package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fitmarket/api/internal/domain"
)

func TestPubSubEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "site-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	defer topic.Stop()

	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	occurred := time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC)
	event := domain.Event{
		Type:       domain.EventTrainerActivated,
		Subject:    "trn_01j0",
		OccurredAt: occurred,
		Attributes: map[string]string{" city ": " Berlin ", "": "dropped"},
	}
	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload eventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Type != domain.EventTrainerActivated || payload.Subject != "trn_01j0" || !payload.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if len(payload.Attributes) != 1 || payload.Attributes["city"] != "Berlin" {
		t.Fatalf("expected normalised attributes, got %#v", payload.Attributes)
	}
	if messages[0].Attributes["type"] != domain.EventTrainerActivated || messages[0].Attributes["city"] != "Berlin" {
		t.Fatalf("expected type attribute, got %#v", messages[0].Attributes)
	}
}

func TestPubSubEventPublisherRequiresType(t *testing.T) {
	publisher := &PubSubEventPublisher{topic: &pubsub.Topic{}}
	if err := publisher.Publish(context.Background(), domain.Event{}); err == nil {
		t.Fatal("expected error for untyped event")
	}
}
