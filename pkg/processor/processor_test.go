package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func newTestProcessor(identifier Identifier, maxRetries int) *Processor {
	return NewProcessor(Config{
		Consumer:     kafka.ConsumerConfig{Topic: "contact-observations"},
		Workers:      2,
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
	}, identifier, testLogger())
}

func msg(value string) *kafka.IncomingMessage {
	return &kafka.IncomingMessage{Topic: "contact-observations", Value: []byte(value)}
}

type mockIdentifier struct {
	mock.Mock
}

func (m *mockIdentifier) Identify(ctx context.Context, obs identity.Observation) (*identity.Result, error) {
	args := m.Called(ctx, obs)
	result, _ := args.Get(0).(*identity.Result)
	return result, args.Error(1)
}

func TestNewProcessor_Workers(t *testing.T) {
	p := newTestProcessor(&mockIdentifier{}, 0)
	assert.Len(t, p.consumers, 2)
	assert.False(t, p.Healthy())

	p = NewProcessor(Config{}, &mockIdentifier{}, testLogger())
	assert.Len(t, p.consumers, 1)
}

func TestHandle_IdentifiesObservations(t *testing.T) {
	store := identity.NewMemoryStore()
	p := newTestProcessor(identity.NewService(store, testLogger()), 0)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, msg(`{"email":"lorraine@hillvalley.edu","phoneNumber":"123456"}`)))
	require.NoError(t, p.Handle(ctx, msg(`{"email":"mcfly@hillvalley.edu","phoneNumber":123456}`)))

	contacts, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.True(t, contacts[0].IsPrimary())
	assert.Equal(t, contacts[0].ID, *contacts[1].LinkedID)
}

func TestHandle_PermanentFailures(t *testing.T) {
	p := newTestProcessor(identity.NewService(identity.NewMemoryStore(), testLogger()), 3)

	tests := []struct {
		name  string
		value string
	}{
		{name: "not json", value: `{"email":`},
		{name: "wrong type", value: `{"email":42}`},
		{name: "no identifiers", value: `{}`},
		{name: "empty identifiers", value: `{"email":"","phoneNumber":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Handle(context.Background(), msg(tt.value))
			require.Error(t, err)
			assert.True(t, kafka.IsPermanent(err))
		})
	}
}

func TestHandle_RetriesStoreFailures(t *testing.T) {
	identifier := &mockIdentifier{}
	storeErr := &identity.Error{Kind: identity.KindStoreUnavailable, Op: "identity.Identify", Err: errors.New("connection refused")}
	identifier.On("Identify", mock.Anything, mock.Anything).Return(nil, storeErr).Twice()
	identifier.On("Identify", mock.Anything, mock.Anything).Return(&identity.Result{
		View:    &models.IdentityView{PrimaryContactID: 1},
		Outcome: identity.OutcomeCreatedPrimary,
	}, nil).Once()

	p := newTestProcessor(identifier, 3)
	require.NoError(t, p.Handle(context.Background(), msg(`{"email":"doc@hillvalley.edu"}`)))
	identifier.AssertNumberOfCalls(t, "Identify", 3)
}

func TestHandle_GivesUpAfterMaxRetries(t *testing.T) {
	identifier := &mockIdentifier{}
	storeErr := &identity.Error{Kind: identity.KindStoreUnavailable, Op: "identity.Identify", Err: errors.New("connection refused")}
	identifier.On("Identify", mock.Anything, mock.Anything).Return(nil, storeErr)

	p := newTestProcessor(identifier, 2)
	err := p.Handle(context.Background(), msg(`{"phoneNumber":"555"}`))
	require.Error(t, err)
	assert.False(t, kafka.IsPermanent(err))
	assert.True(t, identity.IsKind(err, identity.KindStoreUnavailable))
	identifier.AssertNumberOfCalls(t, "Identify", 3)
}

func TestHandle_NoPrimaryIsPermanent(t *testing.T) {
	identifier := &mockIdentifier{}
	identifier.On("Identify", mock.Anything, mock.Anything).
		Return(nil, &identity.Error{Kind: identity.KindNoPrimaryFound, Op: "identity.Identify"})

	p := newTestProcessor(identifier, 5)
	err := p.Handle(context.Background(), msg(`{"phoneNumber":"555"}`))
	assert.True(t, kafka.IsPermanent(err))
	identifier.AssertNumberOfCalls(t, "Identify", 1)
}
