package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current contact event schema version
const SchemaVersion = "1.0"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles Kafka event emission
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compressionCodec(cfg.Compression),
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg.Topic, logger)
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Snappy
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) Topic() string {
	return p.topic
}

// ContactEvent describes a change to one stored contact.
type ContactEvent struct {
	EventType        string               `json:"event_type"` // contact.created, contact.linked
	ContactID        int64                `json:"contact_id"`
	PrimaryContactID int64                `json:"primary_contact_id"`
	Contact          *models.Contact      `json:"contact,omitempty"`
	Identity         *models.IdentityView `json:"identity,omitempty"`
	RequestID        string               `json:"request_id,omitempty"`
	Timestamp        time.Time            `json:"timestamp"`
}

// PublishContactEvents publishes a batch of contact events. Events are keyed
// by primary contact id so one person's events stay on one partition.
func (p *Producer) PublishContactEvents(ctx context.Context, events []*ContactEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishContactEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	traceParent := tracing.GetTraceParent(ctx)
	requestID := fernctx.GetRequestID(ctx)

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		if event.RequestID == "" {
			event.RequestID = requestID
		}

		data, err := json.Marshal(event)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal %s event", event.EventType)
		}

		headers := []kafka.Header{
			{Key: HeaderEventType, Value: []byte(event.EventType)},
			{Key: HeaderSchemaVersion, Value: []byte(SchemaVersion)},
		}
		if traceParent != "" {
			headers = append(headers, kafka.Header{Key: HeaderTraceParent, Value: []byte(traceParent)})
		}
		if event.RequestID != "" {
			headers = append(headers, kafka.Header{Key: HeaderRequestID, Value: []byte(event.RequestID)})
		}

		messages[i] = kafka.Message{
			Topic:   p.topic,
			Key:     []byte(strconv.FormatInt(event.PrimaryContactID, 10)),
			Value:   data,
			Headers: headers,
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish contact events batch")
		tracing.RecordError(span, err)
		metrics.RecordKafkaPublish(p.topic, "error")
		return errors.Wrap(err, "failed to publish contact events")
	}

	metrics.RecordKafkaPublish(p.topic, "published")
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published contact events batch")

	return nil
}
