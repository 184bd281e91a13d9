// Package events turns committed identify results into contact events.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	EventContactCreated = "contact.created"
	// EventContactLinked is emitted for a primary demoted by a merge and for
	// every secondary moved onto the surviving primary.
	EventContactLinked = "contact.linked"
)

// Publisher is the part of the kafka producer the emitter needs.
type Publisher interface {
	PublishContactEvents(ctx context.Context, events []*kafka.ContactEvent) error
}

// Emitter publishes contact events after each committed Identify.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

var _ identity.Listener = (*Emitter)(nil)

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// OnIdentified publishes the events for result. Publish failures are logged;
// the contact rows are already committed.
func (e *Emitter) OnIdentified(ctx context.Context, result *identity.Result) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.OnIdentified")
	defer span.End()

	events := BuildEvents(result)
	if len(events) == 0 {
		return
	}

	if err := e.publisher.PublishContactEvents(ctx, events); err != nil {
		tracing.RecordError(span, err)
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_count":        len(events),
			"primary_contact_id": result.View.PrimaryContactID,
		}).Error("Failed to emit contact events")
	}
}

// BuildEvents lists the events a result produces, creations first.
func BuildEvents(result *identity.Result) []*kafka.ContactEvent {
	if result == nil || result.View == nil {
		return nil
	}

	var events []*kafka.ContactEvent
	if result.Created != nil {
		events = append(events, newEvent(EventContactCreated, *result.Created, result.View))
	}
	if result.Merge != nil {
		for _, contact := range result.Merge.Demoted {
			events = append(events, newEvent(EventContactLinked, contact, result.View))
		}
		for _, contact := range result.Merge.Relinked {
			events = append(events, newEvent(EventContactLinked, contact, result.View))
		}
	}
	return events
}

func newEvent(eventType string, contact models.Contact, view *models.IdentityView) *kafka.ContactEvent {
	c := contact.Clone()
	return &kafka.ContactEvent{
		EventType:        eventType,
		ContactID:        contact.ID,
		PrimaryContactID: view.PrimaryContactID,
		Contact:          &c,
		Identity:         view,
	}
}
