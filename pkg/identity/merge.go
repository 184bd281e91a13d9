package identity

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// MergeResult describes a reconciliation of several primaries into one.
type MergeResult struct {
	SurvivorID int64
	Cluster    *Cluster
	// Demoted are the former primaries, as stored after demotion.
	Demoted []models.Contact
	// Relinked are secondaries moved onto the survivor.
	Relinked []models.Contact
}

// Merger collapses a cluster holding more than one primary onto the oldest one.
type Merger struct {
	store  Store
	logger ectologger.Logger
}

func NewMerger(store Store, logger ectologger.Logger) *Merger {
	return &Merger{store: store, logger: logger}
}

// SelectSurvivor returns the primary with the earliest createdAt, ties broken by
// the smallest id.
func SelectSurvivor(primaries []models.Contact) (models.Contact, bool) {
	if len(primaries) == 0 {
		return models.Contact{}, false
	}
	survivor := primaries[0]
	for _, p := range primaries[1:] {
		if p.Before(&survivor) {
			survivor = p
		}
	}
	return survivor, true
}

func (m *Merger) Reconcile(ctx context.Context, cluster *Cluster) (*MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Merger.Reconcile")
	defer span.End()

	const op = "identity.Reconcile"
	primaries := cluster.Primaries()
	survivor, ok := SelectSurvivor(primaries)
	if !ok {
		return nil, newError(KindNoPrimaryFound, op, nil)
	}

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"survivor_id":   survivor.ID,
		"primary_count": len(primaries),
	})

	result := &MergeResult{SurvivorID: survivor.ID}
	for _, loser := range primaries {
		if loser.ID == survivor.ID {
			continue
		}

		// fetch before demoting so the loser's own secondaries are still keyed to it
		members, err := m.store.FindCluster(ctx, loser.ID)
		if err != nil {
			log.WithError(err).WithField("primary_id", loser.ID).Error("Failed to load cluster of demoted primary")
			tracing.RecordError(span, err)
			return nil, storeError(op, err)
		}

		demoted, err := m.store.Update(ctx, loser.ID, models.Demote(survivor.ID))
		if err != nil {
			log.WithError(err).WithField("primary_id", loser.ID).Error("Failed to demote primary")
			tracing.RecordError(span, err)
			return nil, storeError(op, err)
		}
		result.Demoted = append(result.Demoted, *demoted)

		for _, member := range members {
			if member.ID == loser.ID || !member.IsSecondary() {
				continue
			}
			relinked, err := m.store.Update(ctx, member.ID, models.Relink(survivor.ID))
			if err != nil {
				log.WithError(err).WithField("contact_id", member.ID).Error("Failed to relink secondary")
				tracing.RecordError(span, err)
				return nil, storeError(op, err)
			}
			result.Relinked = append(result.Relinked, *relinked)
		}
	}

	// secondaries reached through a chain still point at a secondary; flatten them
	for _, member := range cluster.Contacts() {
		if !member.IsSecondary() || member.LinkedID == nil || *member.LinkedID == survivor.ID || isDemoted(result, *member.LinkedID) || alreadyMoved(result, member.ID) {
			continue
		}
		if _, isMember := cluster.Get(*member.LinkedID); !isMember {
			continue
		}
		relinked, err := m.store.Update(ctx, member.ID, models.Relink(survivor.ID))
		if err != nil {
			log.WithError(err).WithField("contact_id", member.ID).Error("Failed to relink chained secondary")
			tracing.RecordError(span, err)
			return nil, storeError(op, err)
		}
		result.Relinked = append(result.Relinked, *relinked)
	}

	members, err := m.store.FindCluster(ctx, survivor.ID)
	if err != nil {
		log.WithError(err).Error("Failed to reload merged cluster")
		tracing.RecordError(span, err)
		return nil, storeError(op, err)
	}
	result.Cluster = NewCluster(members...)

	log.WithFields(map[string]any{
		"demoted":  len(result.Demoted),
		"relinked": len(result.Relinked),
	}).Info("Merged contact clusters")

	return result, nil
}

func isDemoted(result *MergeResult, id int64) bool {
	for _, d := range result.Demoted {
		if d.ID == id {
			return true
		}
	}
	return false
}

func alreadyMoved(result *MergeResult, id int64) bool {
	for _, r := range result.Relinked {
		if r.ID == id {
			return true
		}
	}
	return false
}
