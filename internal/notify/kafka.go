package notify

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"trade-alert/internal/config"
)

// messageWriter is satisfied by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes trigger events to a topic, keyed by symbol so one
// symbol's events stay ordered within a partition.
type KafkaNotifier struct {
	topic   string
	enabled bool
	writer  messageWriter
}

// NewKafkaNotifier creates a new KafkaNotifier.
func NewKafkaNotifier(cfg config.KafkaConfig) *KafkaNotifier {
	return &KafkaNotifier{
		topic:   cfg.Topic,
		enabled: cfg.Enabled && len(cfg.Brokers) > 0 && cfg.Topic != "",
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

// Name returns the name of the notifier.
func (k *KafkaNotifier) Name() string {
	return "kafka"
}

// IsEnabled returns whether the notifier is enabled.
func (k *KafkaNotifier) IsEnabled() bool {
	return k.enabled
}

// Send publishes alert notifications; other types are ignored.
func (k *KafkaNotifier) Send(ctx context.Context, n Notification) error {
	if !k.enabled || n.Type != NotificationAlert {
		return nil
	}

	value, err := json.Marshal(map[string]interface{}{
		"event":     eventName(n.Type),
		"title":     n.Title,
		"data":      n.Data,
		"timestamp": n.Timestamp.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshaling kafka event: %w", err)
	}

	var key []byte
	if symbol, ok := n.Data["symbol"].(string); ok {
		key = []byte(symbol)
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		return fmt.Errorf("publishing to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
