// Package processor runs Identify for contact observations read from Kafka.
package processor

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// Identifier is satisfied by *identity.Service.
type Identifier interface {
	Identify(ctx context.Context, obs identity.Observation) (*identity.Result, error)
}

type Config struct {
	Consumer kafka.ConsumerConfig
	// Workers is the number of group members started; each processes its
	// partitions in order.
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
}

type Processor struct {
	cfg        Config
	identifier Identifier
	logger     ectologger.Logger
	consumers  []*kafka.Consumer
}

func NewProcessor(cfg Config, identifier Identifier, logger ectologger.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}

	p := &Processor{
		cfg:        cfg,
		identifier: identifier,
		logger:     logger,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.consumers = append(p.consumers, kafka.NewConsumer(cfg.Consumer, logger, p.Handle))
	}
	return p
}

func (p *Processor) Start(ctx context.Context) error {
	for i, consumer := range p.consumers {
		if err := consumer.Start(ctx); err != nil {
			return errors.Wrapf(err, "failed to start consumer %d", i)
		}
	}
	p.logger.WithContext(ctx).WithField("workers", len(p.consumers)).Info("Observation processor started")
	return nil
}

func (p *Processor) Stop() error {
	var firstErr error
	for _, consumer := range p.consumers {
		if err := consumer.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Healthy reports whether every consumer holds a reader.
func (p *Processor) Healthy() bool {
	for _, consumer := range p.consumers {
		if !consumer.Healthy() {
			return false
		}
	}
	return len(p.consumers) > 0
}

// Handle decodes one observation and identifies it. Malformed or empty
// observations are permanent failures; store failures are retried here and
// then handed back to the consumer uncommitted.
func (p *Processor) Handle(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Handle")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	req, err := utils.DecodeJSON[models.IdentifyRequest](msg.Value)
	if err != nil {
		log.WithError(err).Warn("Invalid observation message")
		return kafka.Permanent(err)
	}
	email, phone := req.Observation()
	obs := identity.NewObservation(email, phone)

	for attempt := 0; ; attempt++ {
		result, err := p.identifier.Identify(ctx, obs)
		if err == nil {
			log.WithFields(map[string]any{
				"primary_contact_id": result.View.PrimaryContactID,
				"outcome":            result.Outcome,
			}).Debug("Processed observation")
			return nil
		}

		if identity.IsKind(err, identity.KindInvalidRequest) || identity.IsKind(err, identity.KindNoPrimaryFound) {
			log.WithError(err).Warn("Observation cannot be identified")
			return kafka.Permanent(err)
		}

		if attempt >= p.cfg.MaxRetries {
			tracing.RecordError(span, err)
			return errors.Wrapf(err, "identify failed after %d attempts", attempt+1)
		}

		log.WithError(err).WithField("attempt", attempt+1).Warn("Identify failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.RetryBackoff * time.Duration(attempt+1)):
		}
	}
}
