package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/synctity/pkg/lg"
	"github.com/andrej220/synctity/pkg/runner"
	"github.com/segmentio/kafka-go"
)

var ErrNilWriter = errors.New("kafka sink needs a message writer")

const defaultWriteTimeout = 5 * time.Second

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" validate:"required,min=1"`
	Topic   string   `yaml:"topic" validate:"required"`
}

// Kafka publishes every event as JSON, keyed by run ID so all events of a
// run land on the same partition in order.
type Kafka struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	logger  lg.Logger
}

// NewKafka builds an asynchronous kafka-go writer for cfg. Delivery errors
// are logged, never returned to the runner.
func NewKafka(cfg KafkaConfig, logger lg.Logger) *Kafka {
	if logger == nil {
		logger = lg.Discard
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to deliver events", lg.String("topic", cfg.Topic), lg.Int("count", len(messages)), lg.Err(err))
			}
		},
	}
	k, _ := NewKafkaWithWriter(w, cfg.Topic, logger)
	return k
}

func NewKafkaWithWriter(w MessageWriter, topic string, logger lg.Logger) (*Kafka, error) {
	if w == nil {
		return nil, ErrNilWriter
	}
	if logger == nil {
		logger = lg.Discard
	}
	return &Kafka{writer: w, topic: topic, timeout: defaultWriteTimeout, logger: logger}, nil
}

func (k *Kafka) Emit(ev runner.Event) {
	if err := k.publish(ev); err != nil {
		k.logger.Error("Failed to publish event", lg.String("topic", k.topic), lg.String("run", ev.RunID.String()), lg.Err(err))
	}
}

func (k *Kafka) publish(ev runner.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   ev.RunID[:],
		Value: value,
		Time:  ev.Time,
	})
	if errors.Is(err, kafka.UnknownTopicOrPartition) {
		return fmt.Errorf("topic %q does not exist: %w", k.topic, err)
	}
	return err
}

// Close flushes pending messages.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
