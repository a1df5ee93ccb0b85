package report

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saifguard/saifguard/internal/model"
)

// PubSubSink publishes discrepancy sets as JSON events to a Pub/Sub topic.
// Message attributes carry the session and per-classification counts so
// subscribers can filter without decoding the payload.
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubSink connects to the project and binds the topic. The sink owns
// the client; Close releases it.
func NewPubSubSink(ctx context.Context, projectID, topicID string) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "report: create pubsub client")
	}
	return &PubSubSink{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

func (s *PubSubSink) Publish(ctx context.Context, sessionID string, set *model.DiscrepancySet) (string, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return "", eris.Wrap(err, "report: marshal discrepancy set")
	}

	attrs := map[string]string{
		"session_id":    sessionID,
		"snapshot_hash": set.SnapshotHash,
	}
	for class, n := range set.CountByClassification() {
		attrs[string(class)] = fmt.Sprintf("%d", n)
	}

	res := s.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := res.Get(ctx)
	if err != nil {
		return "", eris.Wrap(err, "report: publish discrepancy set")
	}

	zap.L().Info("report: discrepancy set published",
		zap.String("session_id", sessionID),
		zap.String("message_id", id),
		zap.Int("records", len(set.Records)),
	)
	return id, nil
}

// Close stops the topic's publish goroutines and releases the client.
func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
