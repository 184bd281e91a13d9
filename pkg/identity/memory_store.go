package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

type memoryTxKey struct{}

// MemoryStore keeps contacts in process. WithTx holds the store mutex for the
// whole unit of work and restores a snapshot when it fails.
type MemoryStore struct {
	mu       sync.Mutex
	contacts map[int64]models.Contact
	nextID   int64
	now      func() time.Time
}

type MemoryStoreOption func(*MemoryStore)

// WithClock overrides time.Now for createdAt / updatedAt stamps.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		contacts: make(map[int64]models.Contact),
		nextID:   1,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed stores contacts verbatim, keeping their ids and timestamps.
func (s *MemoryStore) Seed(contacts ...models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contacts {
		s.contacts[c.ID] = c.Clone()
		if c.ID >= s.nextID {
			s.nextID = c.ID + 1
		}
	}
}

// locked runs fn under the mutex unless ctx is already inside this store's WithTx.
func (s *MemoryStore) locked(ctx context.Context, fn func()) {
	if owner, ok := ctx.Value(memoryTxKey{}).(*MemoryStore); ok && owner == s {
		fn()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *MemoryStore) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Contact
	s.locked(ctx, func() {
		for _, c := range s.contacts {
			if (email != nil && c.Email != nil && *c.Email == *email) ||
				(phone != nil && c.PhoneNumber != nil && *c.PhoneNumber == *phone) {
				out = append(out, c.Clone())
			}
		}
	})
	sortContacts(out)
	return out, nil
}

func (s *MemoryStore) FindCluster(ctx context.Context, primaryID int64) ([]models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Contact
	s.locked(ctx, func() {
		for _, c := range s.contacts {
			if c.ID == primaryID || (c.LinkedID != nil && *c.LinkedID == primaryID) {
				out = append(out, c.Clone())
			}
		}
	})
	sortContacts(out)
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out models.Contact
	s.locked(ctx, func() {
		c := contact.Clone()
		c.ID = s.nextID
		s.nextID++
		now := s.now()
		c.CreatedAt = now
		c.UpdatedAt = now
		s.contacts[c.ID] = c
		out = c.Clone()
	})
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id int64, update models.ContactUpdate) (*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		out   models.Contact
		found bool
	)
	s.locked(ctx, func() {
		c, ok := s.contacts[id]
		if !ok {
			return
		}
		found = true
		if update.LinkedID != nil {
			linked := *update.LinkedID
			c.LinkedID = &linked
		}
		if update.LinkPrecedence != nil {
			c.LinkPrecedence = *update.LinkPrecedence
		}
		c.UpdatedAt = s.now()
		s.contacts[id] = c
		out = c.Clone()
	})
	if !found {
		return nil, ErrContactNotFound
	}
	return &out, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Contact
	s.locked(ctx, func() {
		out = make([]models.Contact, 0, len(s.contacts))
		for _, c := range s.contacts {
			out = append(out, c.Clone())
		}
	})
	sortContacts(out)
	return out, nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, ok := ctx.Value(memoryTxKey{}).(*MemoryStore); ok && owner == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[int64]models.Contact, len(s.contacts))
	for id, c := range s.contacts {
		snapshot[id] = c
	}
	nextID := s.nextID

	committed := false
	defer func() {
		if !committed {
			s.contacts = snapshot
			s.nextID = nextID
		}
	}()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, s)); err != nil {
		return err
	}
	committed = true
	return nil
}

func sortContacts(contacts []models.Contact) {
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].Before(&contacts[j]) })
}
