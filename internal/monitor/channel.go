package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// AlertChannel delivers urgent alerts out of band (e-mail, SMS, push).
type AlertChannel interface {
	Send(ctx context.Context, n Notification) error
}

// LogChannel writes urgent alerts to the log. It is the default channel.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel creates a LogChannel.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger.Named("alerts")}
}

func (c *LogChannel) Send(_ context.Context, n Notification) error {
	c.logger.Warn("urgent parent alert",
		zap.String("id", n.ID),
		zap.String("child_id", n.ChildID),
		zap.String("type", string(n.Type)),
		zap.Strings("flags", n.Flags),
	)
	return nil
}

// KafkaConfig configures the Kafka alert channel.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaChannel publishes urgent alerts as JSON to a Kafka topic, keyed by
// child ID so one child's alerts stay ordered. A notification service
// downstream turns them into e-mail or push messages.
type KafkaChannel struct {
	writer messageWriter
}

// NewKafkaChannel creates a producer for cfg.Topic.
func NewKafkaChannel(cfg KafkaConfig) (*KafkaChannel, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka alert channel needs brokers and a topic")
	}
	return &KafkaChannel{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (c *KafkaChannel) Send(ctx context.Context, n Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	if err := c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.ChildID),
		Value: value,
	}); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (c *KafkaChannel) Close() error {
	return c.writer.Close()
}
