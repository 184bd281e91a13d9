package kafka

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// MessageHandler processes incoming Kafka messages
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// RestartBackoff is how long the consumer waits before rejoining the
	// group after a message failed and was left uncommitted.
	RestartBackoff time.Duration
}

// Consumer handles Kafka message consumption. A handler failure leaves the
// message uncommitted and makes the consumer rejoin its group, so the message
// is fetched again from the last committed offset.
type Consumer struct {
	cfg       ConsumerConfig
	newReader func() messageReader
	logger    ectologger.Logger
	handler   MessageHandler
	wg        sync.WaitGroup
	cancel    context.CancelFunc

	mu     sync.RWMutex
	reader messageReader
}

// NewConsumer creates a consumer group member for cfg.Topic.
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	return newConsumer(cfg, logger, handler, func() messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.ConsumerGroup,
			MinBytes:       1,
			MaxBytes:       10e6, // 10MB
			MaxWait:        500 * time.Millisecond,
			StartOffset:    kafka.FirstOffset,
			CommitInterval: 0, // synchronous commits
		})
	})
}

func newConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler, newReader func() messageReader) *Consumer {
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = time.Second
	}
	return &Consumer{
		cfg:       cfg,
		newReader: newReader,
		logger:    logger,
		handler:   handler,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(ctx)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.cfg.Topic,
		"group": c.cfg.ConsumerGroup,
	}).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

// Healthy reports whether the consumer currently holds a reader.
func (c *Consumer) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reader != nil
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		reader := c.newReader()
		c.setReader(reader)

		err := c.consumeLoop(ctx, reader)

		c.setReader(nil)
		if closeErr := reader.Close(); closeErr != nil {
			c.logger.WithContext(ctx).WithError(closeErr).Warn("Failed to close kafka reader")
		}

		if ctx.Err() != nil {
			c.logger.WithContext(ctx).Info("Consumer loop stopping")
			return
		}

		c.logger.WithContext(ctx).WithError(err).WithField("backoff", c.cfg.RestartBackoff.String()).Warn("Rejoining consumer group after failed message")
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.RestartBackoff):
		}
	}
}

func (c *Consumer) setReader(reader messageReader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reader = reader
}

// consumeLoop returns when ctx is done or a message has to be redelivered.
func (c *Consumer) consumeLoop(ctx context.Context, reader messageReader) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return err
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			continue
		}

		if err := c.processMessage(ctx, reader, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, reader messageReader, msg kafka.Message) error {
	incoming := newIncomingMessage(msg)

	ctx = tracing.ExtractTraceParent(ctx, incoming.Header(HeaderTraceParent))
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	ctx = fernctx.SetSource(ctx, fernctx.SourceKafka)
	if requestID := incoming.Header(HeaderRequestID); requestID != "" {
		ctx = fernctx.SetRequestID(ctx, requestID)
	}

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	if err := c.handler(ctx, incoming); err != nil {
		if !IsPermanent(err) {
			// Not committed: redelivered after the consumer rejoins.
			log.WithError(err).Error("Failed to process message (not committing)")
			tracing.RecordError(span, err)
			metrics.RecordKafkaMessage(msg.Topic, "retry")
			return err
		}
		log.WithError(err).Warn("Dropping message that cannot be processed")
		metrics.RecordKafkaMessage(msg.Topic, "dropped")
	} else {
		metrics.RecordKafkaMessage(msg.Topic, "processed")
	}

	if err := reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
	return nil
}
