package identity

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Outcomes reported by Identify.
const (
	OutcomeCreatedPrimary   = "created_primary"
	OutcomeCreatedSecondary = "created_secondary"
	OutcomeMerged           = "merged"
	OutcomeUnchanged        = "unchanged"
)

// Result is everything one Identify unit of work produced.
type Result struct {
	Observation Observation
	View        *models.IdentityView
	// Contacts is the final cluster, oldest first.
	Contacts []models.Contact
	Created  *models.Contact
	Merge    *MergeResult
	Outcome  string
}

// Listener is told about every committed Identify. Listener failures are the
// listener's to log; they never fail the request.
type Listener interface {
	OnIdentified(ctx context.Context, result *Result)
}

type Service struct {
	store      Store
	resolver   *Resolver
	merger     *Merger
	applicator *Applicator
	locker     Locker
	listeners  []Listener
	logger     ectologger.Logger
}

type Option func(*Service)

func WithLocker(locker Locker) Option {
	return func(s *Service) {
		s.locker = locker
	}
}

func WithListeners(listeners ...Listener) Option {
	return func(s *Service) {
		s.listeners = append(s.listeners, listeners...)
	}
}

func NewService(store Store, logger ectologger.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		resolver:   NewResolver(store, logger),
		merger:     NewMerger(store, logger),
		applicator: NewApplicator(store, logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Identify resolves, reconciles and records one observation, returning the
// consolidated view of the person it belongs to.
func (s *Service) Identify(ctx context.Context, obs Observation) (result *Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Service.Identify")
	defer span.End()

	start := time.Now()
	defer func() {
		outcome := "error_" + KindOf(err).String()
		if err == nil {
			outcome = result.Outcome
		}
		metrics.RecordIdentify(fernctx.GetSource(ctx), outcome, time.Since(start).Seconds())
	}()

	if obs.IsEmpty() {
		return nil, newError(KindInvalidRequest, "identity.Identify", ErrMissingIdentifier)
	}

	if s.locker != nil {
		lockStart := time.Now()
		unlock, lockErr := s.locker.LockKeys(ctx, obs.LockKeys())
		metrics.RecordLockWait(time.Since(lockStart).Seconds())
		if lockErr != nil {
			s.logger.WithContext(ctx).WithError(lockErr).WithFields(obs.fields()).Error("Failed to lock identifiers")
			tracing.RecordError(span, lockErr)
			return nil, newError(KindStoreUnavailable, "identity.Lock", lockErr)
		}
		defer unlock(context.WithoutCancel(ctx))
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		var txErr error
		result, txErr = s.identify(ctx, obs)
		return txErr
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, storeError("identity.Identify", err)
	}

	s.recordMetrics(result)
	for _, listener := range s.listeners {
		listener.OnIdentified(ctx, result)
	}

	return result, nil
}

func (s *Service) identify(ctx context.Context, obs Observation) (*Result, error) {
	result := &Result{Observation: obs, Outcome: OutcomeUnchanged}

	cluster, err := s.resolver.Resolve(ctx, obs)
	if err != nil {
		return nil, err
	}

	var primaryID int64
	if !cluster.IsEmpty() {
		primaries := cluster.Primaries()
		switch {
		case len(primaries) == 0:
			s.logger.WithContext(ctx).WithFields(obs.fields()).WithField("contact_ids", cluster.IDs()).Error("Contact anomaly: cluster has no primary")
			return nil, newError(KindNoPrimaryFound, "identity.Identify", nil)
		case len(primaries) > 1:
			merge, err := s.merger.Reconcile(ctx, cluster)
			if err != nil {
				return nil, err
			}
			result.Merge = merge
			result.Outcome = OutcomeMerged
			cluster = merge.Cluster
			primaryID = merge.SurvivorID
		default:
			primaryID = primaries[0].ID
		}
	}

	// a merge records nothing further unless the request names an identifier
	// the merged cluster has never held
	if result.Outcome == OutcomeMerged && !carriesNewInformation(cluster, obs) {
		return s.view(ctx, result, cluster)
	}

	applied, err := s.applicator.Apply(ctx, cluster, primaryID, obs)
	if err != nil {
		return nil, err
	}
	if applied.Created != nil {
		result.Created = applied.Created
		cluster.Add(*applied.Created)
		if result.Outcome != OutcomeMerged {
			result.Outcome = OutcomeCreatedSecondary
			if applied.Created.IsPrimary() {
				result.Outcome = OutcomeCreatedPrimary
			}
		}
	}

	return s.view(ctx, result, cluster)
}

func (s *Service) view(ctx context.Context, result *Result, cluster *Cluster) (*Result, error) {
	view, err := Format(cluster)
	if err != nil {
		s.logger.WithContext(ctx).WithFields(result.Observation.fields()).Error("Contact anomaly: consolidated cluster has no primary")
		return nil, err
	}
	result.View = view
	result.Contacts = cluster.Contacts()

	return result, nil
}

func (s *Service) recordMetrics(result *Result) {
	if result.Created != nil {
		metrics.RecordContactCreated(string(result.Created.LinkPrecedence))
	}
	if result.Merge != nil {
		metrics.RecordMerge(len(result.Merge.Demoted), len(result.Merge.Relinked))
	}
}

// List returns every stored contact when the store supports listing.
func (s *Service) List(ctx context.Context) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Service.List")
	defer span.End()

	lister, ok := s.store.(Lister)
	if !ok {
		return nil, newError(KindStoreUnavailable, "identity.List", errListUnsupported)
	}
	contacts, err := lister.List(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list contacts")
		return nil, storeError("identity.List", err)
	}
	return contacts, nil
}
