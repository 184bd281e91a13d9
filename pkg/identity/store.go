package identity

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Store is the persistence contract of the engine. Implementations assign ids
// and timestamps on Insert, stamp UpdatedAt on Update, and return
// ErrContactNotFound when Update targets a missing id. Lookups are ordered by
// createdAt ascending.
type Store interface {
	// FindByEmailOrPhone returns every contact whose email equals email or whose
	// phone number equals phone. A nil argument matches nothing.
	FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error)
	// FindCluster returns the contact with id primaryID and every contact linked to it.
	FindCluster(ctx context.Context, primaryID int64) ([]models.Contact, error)
	Insert(ctx context.Context, contact *models.Contact) (*models.Contact, error)
	Update(ctx context.Context, id int64, update models.ContactUpdate) (*models.Contact, error)
	// WithTx runs fn as one unit of work. Any error from fn undoes every write
	// fn made.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Lister is implemented by stores that can enumerate every contact.
type Lister interface {
	List(ctx context.Context) ([]models.Contact, error)
}

// Locker serializes units of work that touch the same identifiers. The
// returned func releases every key.
type Locker interface {
	LockKeys(ctx context.Context, keys []string) (func(context.Context), error)
}
