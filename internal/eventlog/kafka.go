package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/linkmeAman/universal-middleware/internal/events/publisher"
	"github.com/linkmeAman/universal-middleware/pkg/config"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"go.uber.org/zap"
)

// KafkaSink streams appended domain events to an external topic for
// consumers outside the engine (dashboards, alerting, downstream ETL).
// Publishing is best-effort: a send failure is logged, never raised.
type KafkaSink struct {
	producer *publisher.Producer
	topic    string
	log      *logger.Logger
}

// NewKafkaSink returns nil, nil when no brokers are configured — the
// caller treats a nil sink as "disabled".
func NewKafkaSink(cfg *config.Config, log *logger.Logger) (*KafkaSink, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, nil
	}
	producer, err := publisher.NewProducer(publisher.ProducerConfig{
		Brokers:           cfg.KafkaBrokers,
		RequiredAcks:      sarama.WaitForLocal,
		Compression:       sarama.CompressionSnappy,
		MaxRetries:        3,
		RetryBackoff:      100 * time.Millisecond,
		ConnectionTimeout: 5 * time.Second,
	}, log)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{producer: producer, topic: cfg.KafkaTopic, log: log}, nil
}

type eventRecord struct {
	CommandID string         `json:"command_id"`
	EventType string         `json:"event_type"`
	Attempt   int            `json:"attempt"`
	Payload   map[string]any `json:"payload"`
	Ts        int64          `json:"ts"`
}

// Publish sends one domain event to Kafka, keyed by command id so a
// single consumer partition sees a command's full event ordering.
func (k *KafkaSink) Publish(ctx context.Context, commandID, eventType string, attempt int, payload map[string]any) {
	if k == nil {
		return
	}
	rec := eventRecord{CommandID: commandID, EventType: eventType, Attempt: attempt, Payload: payload, Ts: time.Now().UnixMilli()}
	raw, err := json.Marshal(rec)
	if err != nil {
		k.log.Error("eventlog: marshal failed", zap.Error(err))
		return
	}
	if err := k.producer.Publish(ctx, k.topic, commandID, raw); err != nil {
		k.log.Error("eventlog: kafka publish failed", zap.Error(err), zap.String("command_id", commandID))
	}
}

func (k *KafkaSink) Close() error {
	if k == nil {
		return nil
	}
	return k.producer.Close()
}
