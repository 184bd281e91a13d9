package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {})
}

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	current := baseTime
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func newTestStore() *MemoryStore {
	return NewMemoryStore(WithClock(tickingClock()))
}

func str(s string) *string {
	return &s
}

func obs(email, phone string) Observation {
	return NewObservation(str(email), str(phone))
}

func primary(id int64, email, phone *string, createdAt time.Time) models.Contact {
	return models.Contact{
		ID:             id,
		Email:          email,
		PhoneNumber:    phone,
		LinkPrecedence: models.LinkPrecedencePrimary,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func secondary(id, linkedID int64, email, phone *string, createdAt time.Time) models.Contact {
	return models.Contact{
		ID:             id,
		Email:          email,
		PhoneNumber:    phone,
		LinkedID:       &linkedID,
		LinkPrecedence: models.LinkPrecedenceSecondary,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func listAll(t *testing.T, store *MemoryStore) []models.Contact {
	t.Helper()
	contacts, err := store.List(context.Background())
	require.NoError(t, err)
	return contacts
}

// assertInvariants checks the link structure of every stored contact.
func assertInvariants(t *testing.T, store *MemoryStore) {
	t.Helper()
	contacts := listAll(t, store)

	byID := make(map[int64]models.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}

	clusters := map[int64][]models.Contact{}
	for _, c := range contacts {
		switch c.LinkPrecedence {
		case models.LinkPrecedencePrimary:
			assert.Nil(t, c.LinkedID, "primary %d must not be linked", c.ID)
			clusters[c.ID] = append(clusters[c.ID], c)
		case models.LinkPrecedenceSecondary:
			if !assert.NotNil(t, c.LinkedID, "secondary %d must be linked", c.ID) {
				continue
			}
			target, ok := byID[*c.LinkedID]
			if assert.True(t, ok, "secondary %d links to missing %d", c.ID, *c.LinkedID) {
				assert.True(t, target.IsPrimary(), "secondary %d links to non-primary %d", c.ID, target.ID)
			}
			clusters[*c.LinkedID] = append(clusters[*c.LinkedID], c)
		default:
			t.Errorf("contact %d has unknown precedence %q", c.ID, c.LinkPrecedence)
		}
	}

	for primaryID, members := range clusters {
		p := byID[primaryID]
		pairs := map[[2]string]bool{}
		for _, m := range members {
			if m.ID != primaryID {
				assert.True(t, p.Before(&m), "primary %d must be older than member %d", primaryID, m.ID)
			}
			key := [2]string{deref(m.Email), deref(m.PhoneNumber)}
			assert.False(t, pairs[key], "duplicate pair %v in cluster %d", key, primaryID)
			pairs[key] = true
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return "\x00"
	}
	return *s
}
