package events

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishContactEvents(ctx context.Context, events []*kafka.ContactEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func identify(t *testing.T, svc *identity.Service, email, phone string) *identity.Result {
	t.Helper()
	result, err := svc.Identify(context.Background(), identity.NewObservation(models.StringPtr(email), models.StringPtr(phone)))
	require.NoError(t, err)
	return result
}

func eventSummary(events []*kafka.ContactEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

func TestEmitter_PublishesCreatedAndLinked(t *testing.T) {
	publisher := &mockPublisher{}
	var published [][]*kafka.ContactEvent
	publisher.On("PublishContactEvents", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			published = append(published, args.Get(1).([]*kafka.ContactEvent))
		}).
		Return(nil)

	svc := identity.NewService(identity.NewMemoryStore(), testLogger(),
		identity.WithListeners(NewEmitter(publisher, testLogger())))

	identify(t, svc, "george@hillvalley.edu", "919191")
	identify(t, svc, "biffsucks@hillvalley.edu", "717171")
	identify(t, svc, "george@hillvalley.edu", "919191") // nothing new, no event
	identify(t, svc, "george@hillvalley.edu", "717171") // merge

	require.Len(t, published, 3)
	assert.Equal(t, []string{EventContactCreated}, eventSummary(published[0]))
	assert.Equal(t, []string{EventContactCreated}, eventSummary(published[1]))

	linked := published[2]
	require.Len(t, linked, 1)
	assert.Equal(t, EventContactLinked, linked[0].EventType)
	assert.Equal(t, int64(2), linked[0].ContactID)
	assert.Equal(t, int64(1), linked[0].PrimaryContactID)
	assert.Equal(t, models.LinkPrecedenceSecondary, linked[0].Contact.LinkPrecedence)
	assert.Equal(t, []int64{2}, linked[0].Identity.SecondaryContactIDs)
}

func TestEmitter_PublishFailureDoesNotFailIdentify(t *testing.T) {
	publisher := &mockPublisher{}
	publisher.On("PublishContactEvents", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	svc := identity.NewService(identity.NewMemoryStore(), testLogger(),
		identity.WithListeners(NewEmitter(publisher, testLogger())))

	result := identify(t, svc, "lorraine@hillvalley.edu", "123456")
	assert.Equal(t, identity.OutcomeCreatedPrimary, result.Outcome)
	publisher.AssertNumberOfCalls(t, "PublishContactEvents", 1)
}

func TestBuildEvents(t *testing.T) {
	view := &models.IdentityView{PrimaryContactID: 1, SecondaryContactIDs: []int64{2, 3, 4}}
	result := &identity.Result{
		View:    view,
		Created: &models.Contact{ID: 4, LinkPrecedence: models.LinkPrecedenceSecondary},
		Merge: &identity.MergeResult{
			SurvivorID: 1,
			Demoted:    []models.Contact{{ID: 2}},
			Relinked:   []models.Contact{{ID: 3}},
		},
	}

	events := BuildEvents(result)
	require.Len(t, events, 3)
	assert.Equal(t, []string{EventContactCreated, EventContactLinked, EventContactLinked}, eventSummary(events))
	assert.Equal(t, []int64{4, 2, 3}, []int64{events[0].ContactID, events[1].ContactID, events[2].ContactID})
	for _, e := range events {
		assert.Equal(t, int64(1), e.PrimaryContactID)
	}

	assert.Nil(t, BuildEvents(nil))
	assert.Nil(t, BuildEvents(&identity.Result{}))
	assert.Empty(t, BuildEvents(&identity.Result{View: view}))
}
