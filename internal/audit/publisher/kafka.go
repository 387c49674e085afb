// Package publisher fans committed audit entries out to Kafka for
// downstream consumers. Publishing is fire-and-forget: the ledger's own
// trail is the source of truth and a dropped record is only a delivery gap,
// never data loss.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"shareledger/internal/audit"
)

type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafka connects a producer for the given brokers and topic. Returns
// nil when no brokers are configured so callers can treat the publisher as
// optional.
func NewKafka(brokers []string, topic string, logger *slog.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	return &Kafka{client: client, topic: topic, logger: logger}, nil
}

// Notify publishes the entry keyed by the mutated record so all entries for
// one aggregate land on the same partition in order.
func (k *Kafka) Notify(entry audit.Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		k.logger.Error("marshal audit entry for publish", "error", err, "entry_id", entry.ID)
		return
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(entry.RecordID.String()),
		Value: payload,
	}
	k.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			k.logger.Error("publish audit entry", "error", err, "entry_id", entry.ID)
		}
	})
}

func (k *Kafka) Close() {
	if k == nil {
		return
	}
	k.client.Close()
}
