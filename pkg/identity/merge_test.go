package identity

import (
	"context"
	"testing"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectSurvivor(t *testing.T) {
	tests := []struct {
		name      string
		primaries []models.Contact
		want      int64
	}{
		{
			name: "earliest createdAt wins",
			primaries: []models.Contact{
				primary(5, nil, nil, baseTime.Add(time.Hour)),
				primary(9, nil, nil, baseTime),
			},
			want: 9,
		},
		{
			name: "tie broken by smallest id",
			primaries: []models.Contact{
				primary(7, nil, nil, baseTime),
				primary(3, nil, nil, baseTime),
				primary(4, nil, nil, baseTime.Add(time.Second)),
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			survivor, ok := SelectSurvivor(tt.primaries)
			require.True(t, ok)
			assert.Equal(t, tt.want, survivor.ID)
		})
	}

	_, ok := SelectSurvivor(nil)
	assert.False(t, ok)
}

func TestMerger_DemotesAndRelinks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	store.Seed(
		primary(1, str("a@x.com"), str("1"), baseTime),
		secondary(2, 1, str("a2@x.com"), str("1"), baseTime.Add(time.Minute)),
		primary(3, str("b@x.com"), str("2"), baseTime.Add(2*time.Minute)),
		secondary(4, 3, str("b2@x.com"), str("2"), baseTime.Add(3*time.Minute)),
		secondary(5, 3, str("b3@x.com"), str("2"), baseTime.Add(4*time.Minute)),
	)

	cluster, err := NewResolver(store, testLogger()).Resolve(ctx, NewObservation(str("a@x.com"), str("2")))
	require.NoError(t, err)

	result, err := NewMerger(store, testLogger()).Reconcile(ctx, cluster)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.SurvivorID)
	require.Len(t, result.Demoted, 1)
	assert.Equal(t, int64(3), result.Demoted[0].ID)
	assert.Len(t, result.Relinked, 2)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, result.Cluster.IDs())

	for _, c := range result.Cluster.Contacts() {
		if c.ID == 1 {
			assert.True(t, c.IsPrimary())
			continue
		}
		assert.True(t, c.IsSecondary())
		assert.Equal(t, int64(1), *c.LinkedID)
	}
	assertInvariants(t, store)
}

func TestMerger_ThreePrimaries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	store.Seed(
		primary(1, str("a@x.com"), nil, baseTime.Add(2*time.Minute)),
		primary(2, nil, str("2"), baseTime),
		primary(3, str("c@x.com"), nil, baseTime.Add(time.Minute)),
	)

	cluster := NewCluster(listAll(t, store)...)
	result, err := NewMerger(store, testLogger()).Reconcile(ctx, cluster)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.SurvivorID)
	assert.Len(t, result.Demoted, 2)
	assert.Empty(t, result.Relinked)
	assertInvariants(t, store)
}

func TestMerger_NoPrimary(t *testing.T) {
	_, err := NewMerger(newTestStore(), testLogger()).Reconcile(context.Background(), NewCluster())
	assert.True(t, IsKind(err, KindNoPrimaryFound))
}
