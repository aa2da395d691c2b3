// Package consumer reads JSON messages of one type from a Kafka topic.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers []string `yaml:"brokers" json:"brokers" validate:"required,min=1"`
	Topic   string   `yaml:"topic" json:"topic" validate:"required"`
	GroupID string   `yaml:"groupID" json:"groupID" validate:"required"`
}

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DecodeError is returned by Read for a message that is not valid JSON for
// T. The message is committed so it is not redelivered.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type Consumer[T any] struct {
	reader MessageReader
}

func NewConsumer[T any](cfg Config) *Consumer[T] {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	})
	return &Consumer[T]{reader: r}
}

func NewConsumerWithReader[T any](r MessageReader) *Consumer[T] {
	return &Consumer[T]{reader: r}
}

// Read blocks until the next message arrives, decodes it and commits it.
func (c *Consumer[T]) Read(ctx context.Context) (T, error) {
	var zero T

	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return zero, err
	}

	var payload T
	decodeErr := json.Unmarshal(msg.Value, &payload)

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return zero, fmt.Errorf("commit: %w", err)
	}
	if decodeErr != nil {
		return zero, &DecodeError{Offset: msg.Offset, Err: decodeErr}
	}
	return payload, nil
}

// Run calls handle for every message until ctx is done. Decode errors are
// passed to onError and skipped; other read errors are passed to onError
// and retried after a pause.
func (c *Consumer[T]) Run(ctx context.Context, handle func(T), onError func(error)) error {
	for {
		v, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if onError != nil {
				onError(err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				if err := pause(ctx); err != nil {
					return err
				}
			}
			continue
		}
		handle(v)
	}
}

func (c *Consumer[T]) Close() error {
	return c.reader.Close()
}
