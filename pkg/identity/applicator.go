package identity

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Applied reports what Apply wrote. Created is nil when nothing was written.
type Applied struct {
	Created *models.Contact
	Reason  string
}

const (
	ReasonNewPrimary     = "new_primary"
	ReasonNewInformation = "new_information"
	ReasonExactMatch     = "exact_match"
	ReasonNothingNew     = "nothing_new"
)

// Applicator records an observation against its resolved cluster, writing at
// most one contact.
type Applicator struct {
	store  Store
	logger ectologger.Logger
}

func NewApplicator(store Store, logger ectologger.Logger) *Applicator {
	return &Applicator{store: store, logger: logger}
}

// Apply creates a primary for an empty cluster. Otherwise it creates a secondary
// of primaryID when the observation carries an identifier the cluster does not
// hold yet, or carries an email and phone number the cluster knows but has never
// seen on the same contact.
func (a *Applicator) Apply(ctx context.Context, cluster *Cluster, primaryID int64, obs Observation) (*Applied, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Applicator.Apply")
	defer span.End()

	const op = "identity.Apply"
	if obs.IsEmpty() {
		return nil, newError(KindInvalidRequest, op, ErrMissingIdentifier)
	}
	log := a.logger.WithContext(ctx).WithFields(obs.fields())

	if cluster == nil || cluster.IsEmpty() {
		created, err := a.store.Insert(ctx, obs.newContact(models.LinkPrecedencePrimary, nil))
		if err != nil {
			log.WithError(err).Error("Failed to create primary contact")
			tracing.RecordError(span, err)
			return nil, storeError(op, err)
		}
		log.WithField("contact_id", created.ID).Info("Created primary contact")
		return &Applied{Created: created, Reason: ReasonNewPrimary}, nil
	}

	if cluster.HasPair(obs.Email, obs.PhoneNumber) {
		return &Applied{Reason: ReasonExactMatch}, nil
	}
	if !carriesNewInformation(cluster, obs) && !carriesNewPair(obs) {
		return &Applied{Reason: ReasonNothingNew}, nil
	}

	linkedID := primaryID
	created, err := a.store.Insert(ctx, obs.newContact(models.LinkPrecedenceSecondary, &linkedID))
	if err != nil {
		log.WithError(err).WithField("primary_id", primaryID).Error("Failed to create secondary contact")
		tracing.RecordError(span, err)
		return nil, storeError(op, err)
	}
	log.WithFields(map[string]any{
		"contact_id": created.ID,
		"primary_id": primaryID,
	}).Info("Created secondary contact")

	return &Applied{Created: created, Reason: ReasonNewInformation}, nil
}

// carriesNewInformation reports whether obs holds an email or phone number that
// no member of the cluster has.
func carriesNewInformation(cluster *Cluster, obs Observation) bool {
	if obs.Email != nil && !cluster.HasEmail(*obs.Email) {
		return true
	}
	if obs.PhoneNumber != nil && !cluster.HasPhoneNumber(*obs.PhoneNumber) {
		return true
	}
	return false
}

// carriesNewPair reports whether obs names both identifiers. Callers check
// HasPair first, so a full pair reaching here has not been stored together.
func carriesNewPair(obs Observation) bool {
	return obs.Email != nil && obs.PhoneNumber != nil
}
