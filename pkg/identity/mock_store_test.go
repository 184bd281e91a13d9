package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error) {
	args := m.Called(ctx, email, phone)
	return contactsArg(args, 0), args.Error(1)
}

func (m *mockStore) FindCluster(ctx context.Context, primaryID int64) ([]models.Contact, error) {
	args := m.Called(ctx, primaryID)
	return contactsArg(args, 0), args.Error(1)
}

func (m *mockStore) Insert(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	args := m.Called(ctx, contact)
	return contactArg(args, 0), args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, id int64, update models.ContactUpdate) (*models.Contact, error) {
	args := m.Called(ctx, id, update)
	return contactArg(args, 0), args.Error(1)
}

func (m *mockStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}

func contactsArg(args mock.Arguments, i int) []models.Contact {
	if v := args.Get(i); v != nil {
		return v.([]models.Contact)
	}
	return nil
}

func contactArg(args mock.Arguments, i int) *models.Contact {
	if v := args.Get(i); v != nil {
		return v.(*models.Contact)
	}
	return nil
}

func TestService_PropagatesStoreErrors(t *testing.T) {
	dbErr := errors.New("connection reset by peer")
	now := time.Now()

	tests := []struct {
		name     string
		setup    func(m *mockStore)
		wantKind Kind
	}{
		{
			name: "lookup fails",
			setup: func(m *mockStore) {
				m.On("FindByEmailOrPhone", mock.Anything, mock.Anything, mock.Anything).Return(nil, dbErr)
			},
			wantKind: KindStoreUnavailable,
		},
		{
			name: "cluster fetch fails",
			setup: func(m *mockStore) {
				m.On("FindByEmailOrPhone", mock.Anything, mock.Anything, mock.Anything).
					Return([]models.Contact{primary(1, str("a@x.com"), nil, now)}, nil)
				m.On("FindCluster", mock.Anything, int64(1)).Return(nil, dbErr)
			},
			wantKind: KindStoreUnavailable,
		},
		{
			name: "insert fails",
			setup: func(m *mockStore) {
				m.On("FindByEmailOrPhone", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
				m.On("Insert", mock.Anything, mock.Anything).Return(nil, dbErr)
			},
			wantKind: KindStoreUnavailable,
		},
		{
			name: "demotion targets a vanished contact",
			setup: func(m *mockStore) {
				p1 := primary(1, str("a@x.com"), nil, now)
				p2 := primary(2, nil, str("1"), now.Add(time.Second))
				m.On("FindByEmailOrPhone", mock.Anything, mock.Anything, mock.Anything).
					Return([]models.Contact{p1, p2}, nil)
				m.On("FindCluster", mock.Anything, int64(1)).Return([]models.Contact{p1}, nil)
				m.On("FindCluster", mock.Anything, int64(2)).Return([]models.Contact{p2}, nil)
				m.On("Update", mock.Anything, int64(2), mock.Anything).Return(nil, ErrContactNotFound)
			},
			wantKind: KindNotFound,
		},
		{
			name: "unit of work cannot start",
			setup: func(m *mockStore) {
				m.On("WithTx", mock.Anything, mock.Anything).Return(dbErr)
			},
			wantKind: KindStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			listener := &recordingListener{}
			tt.setup(store)
			store.On("WithTx", mock.Anything, mock.Anything).Return(nil)
			svc := newTestService(store, WithListeners(listener))

			result, err := svc.Identify(context.Background(), obs("a@x.com", "1"))
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Empty(t, listener.results)
			if tt.wantKind == KindStoreUnavailable {
				assert.ErrorIs(t, err, dbErr)
			}
		})
	}
}

func TestService_ListUnsupported(t *testing.T) {
	_, err := newTestService(&mockStore{}).List(context.Background())
	assert.True(t, IsKind(err, KindStoreUnavailable))
}
