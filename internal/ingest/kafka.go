package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageCounter is told how each message ended: "ok" or "skipped".
type MessageCounter interface {
	IngestMessage(result string)
}

func NewReader(cfg Config) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic must not be empty")
	}

	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	}), nil
}

type Consumer struct {
	reader   Reader
	recorder Recorder
	counter  MessageCounter
	log      *zap.Logger
}

func NewConsumer(reader Reader, recorder Recorder, counter MessageCounter, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{reader: reader, recorder: recorder, counter: counter, log: log}
}

// Run consumes until ctx is done, then closes the reader. A message that
// cannot be decoded is logged and committed so it never blocks the partition.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Error("failed to close kafka reader", zap.Error(err))
		}
	}()
	c.log.Info("consumer started")

	backoff := time.Second
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				c.log.Info("consumer stopped")
				return nil
			}
			c.log.Error("failed to fetch message", zap.Error(err))
			select {
			case <-time.After(backoff):
				if backoff < 10*time.Second {
					backoff *= 2
				}
				continue
			case <-ctx.Done():
				c.log.Info("consumer stopped")
				return nil
			}
		}
		backoff = time.Second

		c.handle(msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("failed to commit message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *Consumer) handle(msg kafka.Message) {
	env, err := Decode(msg.Value)
	if err != nil {
		c.log.Warn("skipping undecodable message",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		c.count("skipped")
		return
	}

	env.Apply(c.recorder)
	c.count("ok")
}

func (c *Consumer) count(result string) {
	if c.counter != nil {
		c.counter.IngestMessage(result)
	}
}
