package identity

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Resolver finds every contact transitively related to an observation: the
// direct matches plus the full cluster of each matched record's primary.
type Resolver struct {
	store  Store
	logger ectologger.Logger
}

func NewResolver(store Store, logger ectologger.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, obs Observation) (*Cluster, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.Resolve")
	defer span.End()

	const op = "identity.Resolve"
	if obs.IsEmpty() {
		return nil, newError(KindInvalidRequest, op, ErrMissingIdentifier)
	}

	matched, err := r.store.FindByEmailOrPhone(ctx, obs.Email, obs.PhoneNumber)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(obs.fields()).Error("Failed to find contacts by email or phone")
		tracing.RecordError(span, err)
		return nil, storeError(op, err)
	}

	cluster := NewCluster(matched...)
	if cluster.IsEmpty() {
		return cluster, nil
	}

	queue := make([]int64, 0, len(matched))
	for _, contact := range matched {
		if root, ok := r.rootOf(ctx, contact); ok {
			queue = append(queue, root)
		}
	}

	visited := make(map[int64]bool, len(queue))
	for len(queue) > 0 {
		root := queue[0]
		queue = queue[1:]
		if visited[root] {
			continue
		}
		visited[root] = true

		members, err := r.store.FindCluster(ctx, root)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("primary_id", root).Error("Failed to find contact cluster")
			tracing.RecordError(span, err)
			return nil, storeError(op, err)
		}
		cluster.Add(members...)

		// a root that turns out to be a secondary is a chain; follow it once
		for _, member := range members {
			if member.ID != root || !member.IsSecondary() {
				continue
			}
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"contact_id": member.ID,
				"linked_id":  member.LinkedID,
			}).Warn("Contact anomaly: linked contact is itself a secondary")
			if next, ok := r.rootOf(ctx, member); ok && !visited[next] {
				queue = append(queue, next)
			}
		}
	}

	return cluster, nil
}

// rootOf returns the id whose cluster contact belongs to. Self links and
// secondaries with no link are logged and yield no root.
func (r *Resolver) rootOf(ctx context.Context, contact models.Contact) (int64, bool) {
	if contact.IsPrimary() {
		return contact.ID, true
	}
	switch {
	case contact.LinkedID == nil:
		r.logger.WithContext(ctx).WithField("contact_id", contact.ID).Warn("Contact anomaly: secondary without linkedId")
		return 0, false
	case *contact.LinkedID == contact.ID:
		r.logger.WithContext(ctx).WithField("contact_id", contact.ID).Warn("Contact anomaly: secondary linked to itself")
		return 0, false
	}
	return *contact.LinkedID, true
}
