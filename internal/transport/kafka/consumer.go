// Package kafka feeds GPS readings published on a Kafka topic into the
// position store.
package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"parkwatch/internal/domain"
	"parkwatch/internal/metrics"
	"parkwatch/pkg/gpsapi"
)

// MessageReader is the part of *kafka.Reader the consumer uses
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Sink interface {
	Add(positions []domain.Position) int
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Consumer struct {
	reader MessageReader
	sink   Sink
	loc    *time.Location
	logger *slog.Logger

	retryDelay time.Duration
}

func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		CommitInterval: time.Second,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	})
}

func NewConsumer(reader MessageReader, sink Sink, loc *time.Location, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		sink:       sink,
		loc:        loc,
		logger:     logger.With("component", "kafka_consumer"),
		retryDelay: 5 * time.Second,
	}
}

// Run consumes until ctx is cancelled. Read errors are logged and retried.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("error reading message, retrying", "error", err, "retry_in", c.retryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}
		c.handle(msg)
	}
}

func (c *Consumer) handle(msg kafka.Message) {
	positions, skipped, err := gpsapi.Decode(msg.Value, c.loc)
	if err != nil {
		metrics.RecordIngest("kafka", 0, 1)
		c.logger.Warn("dropping undecodable message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}

	accepted := c.sink.Add(positions)
	skipped += len(positions) - accepted
	metrics.RecordIngest("kafka", accepted, skipped)

	c.logger.Debug("message consumed",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"accepted", accepted,
		"skipped", skipped,
	)
}
