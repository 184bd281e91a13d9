package contact

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const (
	table        = "contact"
	retryBackoff = 10 * time.Millisecond
)

var columns = []string{"id", "phonenumber", "email", "linkedid", "linkprecedence", "createdat", "updatedat", "deletedat"}

// row is the column mapping of the contact table.
type row struct {
	ID             int64      `db:"id"`
	PhoneNumber    *string    `db:"phonenumber"`
	Email          *string    `db:"email"`
	LinkedID       *int64     `db:"linkedid"`
	LinkPrecedence string     `db:"linkprecedence"`
	CreatedAt      time.Time  `db:"createdat"`
	UpdatedAt      time.Time  `db:"updatedat"`
	DeletedAt      *time.Time `db:"deletedat"`
}

func (r row) toModel() (models.Contact, error) {
	precedence, err := models.ParseLinkPrecedence(r.LinkPrecedence)
	if err != nil {
		return models.Contact{}, errors.Wrapf(err, "contact %d", r.ID)
	}
	return models.Contact{
		ID:             r.ID,
		PhoneNumber:    r.PhoneNumber,
		Email:          r.Email,
		LinkedID:       r.LinkedID,
		LinkPrecedence: precedence,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		DeletedAt:      r.DeletedAt,
	}, nil
}

func toModels(rows []row) ([]models.Contact, error) {
	out := make([]models.Contact, 0, len(rows))
	for _, r := range rows {
		c, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Repository is the Postgres implementation of identity.Store.
type Repository struct {
	db          database.DB
	logger      ectologger.Logger
	txRetries   int
	txIsolation sql.IsolationLevel
}

var _ identity.Store = (*Repository)(nil)
var _ identity.Lister = (*Repository)(nil)

type Option func(*Repository)

// WithTxRetries sets how many times a conflicting unit of work is rerun.
func WithTxRetries(retries int) Option {
	return func(r *Repository) {
		r.txRetries = retries
	}
}

func NewRepository(db database.DB, logger ectologger.Logger, opts ...Option) *Repository {
	r := &Repository{
		db:          db,
		logger:      logger,
		txRetries:   5,
		txIsolation: sql.LevelSerializable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByEmailOrPhone")
	defer span.End()

	if email == nil && phone == nil {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	var conds []string
	if email != nil {
		conds = append(conds, sb.Equal("email", *email))
	}
	if phone != nil {
		conds = append(conds, sb.Equal("phonenumber", *phone))
	}
	sb.Where(sb.Or(conds...))
	sb.OrderBy("createdat ASC", "id ASC")

	return r.selectContacts(ctx, sb.Build)
}

func (r *Repository) FindCluster(ctx context.Context, primaryID int64) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindCluster")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Or(
		sb.Equal("id", primaryID),
		sb.Equal("linkedid", primaryID),
	))
	sb.OrderBy("createdat ASC", "id ASC")

	return r.selectContacts(ctx, sb.Build)
}

func (r *Repository) List(ctx context.Context) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.OrderBy("createdat ASC", "id ASC")

	return r.selectContacts(ctx, sb.Build)
}

func (r *Repository) selectContacts(ctx context.Context, build func() (string, []any)) ([]models.Contact, error) {
	query, args := build()

	var rows []row
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to select contacts")
		return nil, errors.Wrap(err, "failed to select contacts")
	}

	contacts, err := toModels(rows)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Contact row failed validation")
		return nil, err
	}
	return contacts, nil
}

func (r *Repository) Insert(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Insert")
	defer span.End()

	now := time.Now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("phonenumber", "email", "linkedid", "linkprecedence", "createdat", "updatedat")
	ib.Values(contact.PhoneNumber, contact.Email, contact.LinkedID, string(contact.LinkPrecedence), now, now)
	ib.Returning(columns...)

	query, args := ib.Build()
	var inserted row
	if err := r.db.Conn(ctx).GetContext(ctx, &inserted, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert contact")
		return nil, errors.Wrap(err, "failed to insert contact")
	}

	created, err := inserted.toModel()
	if err != nil {
		return nil, err
	}
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":              created.ID,
		"link_precedence": created.LinkPrecedence,
	}).Debug("Inserted contact")
	return &created, nil
}

func (r *Repository) Update(ctx context.Context, id int64, update models.ContactUpdate) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	assignments := []string{ub.Assign("updatedat", time.Now().UTC())}
	if update.LinkedID != nil {
		assignments = append(assignments, ub.Assign("linkedid", *update.LinkedID))
	}
	if update.LinkPrecedence != nil {
		assignments = append(assignments, ub.Assign("linkprecedence", string(*update.LinkPrecedence)))
	}
	ub.Set(assignments...)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to update contact")
		return nil, errors.Wrap(err, "failed to update contact")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, errors.Wrapf(identity.ErrContactNotFound, "contact %d", id)
	}

	return r.get(ctx, id)
}

func (r *Repository) get(ctx context.Context, id int64) (*models.Contact, error) {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var found row
	if err := r.db.Conn(ctx).GetContext(ctx, &found, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(identity.ErrContactNotFound, "contact %d", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get contact")
		return nil, errors.Wrap(err, "failed to get contact")
	}

	contact, err := found.toModel()
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// WithTx runs fn in a serializable transaction. Serialization failures and
// unique violations from racing writers restart fn on a fresh transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.WithTx")
	defer span.End()

	opts := &sql.TxOptions{Isolation: r.txIsolation}
	var err error
	for attempt := 0; attempt <= r.txRetries; attempt++ {
		err = database.RunInTx(ctx, r.db, opts, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		r.logger.WithContext(ctx).WithError(err).WithField("attempt", attempt+1).Warn("Retrying contact transaction after conflict")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * retryBackoff):
		}
	}
	return err
}

// IsRetryable reports whether err is a serialization failure or a unique
// violation, both of which resolve by rerunning the unit of work.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}
