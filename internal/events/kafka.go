package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"carepay/internal/platform/config"
)

// producer is the subset of *kgo.Client the publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher produces events synchronously with acks from all in-sync
// replicas, keyed by document id.
type KafkaPublisher struct {
	client producer
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects to the brokers and, when configured, creates the
// topic if it does not exist.
func NewKafkaPublisher(ctx context.Context, cfg config.KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
		kgo.RecordDeliveryTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}
	if cfg.AutoCreateTopic {
		if err := ensureTopic(ctx, kadm.NewClient(client), cfg.Topic, cfg.Partitions, cfg.ReplicationFactor); err != nil {
			client.Close()
			return nil, err
		}
	}
	return newKafkaPublisher(client, cfg.Topic, logger), nil
}

func newKafkaPublisher(client producer, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic, logger: logger}
}

func ensureTopic(ctx context.Context, admin *kadm.Client, topic string, partitions int32, replication int16) error {
	resp, err := admin.CreateTopic(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(e.Key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.EventType)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", e.EventType, err)
	}
	p.logger.DebugContext(ctx, "event published",
		"event_type", string(e.EventType),
		"document_id", e.DocumentID,
	)
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
