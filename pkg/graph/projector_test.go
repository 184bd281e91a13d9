package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
)

var created = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

func contact(id int64, email, phone string, linkedID *int64) models.Contact {
	c := models.Contact{
		ID:             id,
		Email:          models.StringPtr(email),
		PhoneNumber:    models.StringPtr(phone),
		LinkedID:       linkedID,
		LinkPrecedence: models.LinkPrecedencePrimary,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	if linkedID != nil {
		c.LinkPrecedence = models.LinkPrecedenceSecondary
	}
	return c
}

func TestBuildProjection(t *testing.T) {
	contacts := []models.Contact{
		contact(1, "lorraine@hillvalley.edu", "123456", nil),
		contact(23, "mcfly@hillvalley.edu", "", models.Int64Ptr(1)),
	}

	statements := BuildProjection(contacts)
	require.Len(t, statements, 4)

	assert.Equal(t, upsertContactsCypher, statements[0].Cypher)
	nodes := statements[0].Params["contacts"].([]map[string]any)
	require.Len(t, nodes, 2)
	assert.Equal(t, map[string]any{
		"id":              int64(1),
		"email":           "lorraine@hillvalley.edu",
		"phone_number":    "123456",
		"link_precedence": "primary",
		"created_at":      "2023-04-01T00:00:00Z",
		"updated_at":      "2023-04-01T00:00:00Z",
	}, nodes[0])
	assert.NotContains(t, nodes[1], "phone_number")

	assert.Equal(t, unlinkPrimariesCypher, statements[1].Cypher)
	assert.Equal(t, []int64{1}, statements[1].Params["primaries"])

	links := []map[string]any{{"from": int64(23), "to": int64(1)}}
	assert.Equal(t, unlinkStaleCypher, statements[2].Cypher)
	assert.Equal(t, links, statements[2].Params["links"])
	assert.Equal(t, linkCypher, statements[3].Cypher)
	assert.Equal(t, links, statements[3].Params["links"])
}

func TestBuildProjection_SinglePrimary(t *testing.T) {
	statements := BuildProjection([]models.Contact{contact(1, "doc@hillvalley.edu", "", nil)})
	require.Len(t, statements, 2)
	assert.Equal(t, upsertContactsCypher, statements[0].Cypher)
	assert.Equal(t, unlinkPrimariesCypher, statements[1].Cypher)

	assert.Nil(t, BuildProjection(nil))
}

type fakeWriter struct {
	calls int
	err   error
}

func (w *fakeWriter) ExecuteWrite(_ context.Context, _ func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	w.calls++
	return nil, w.err
}

func TestProjector_OnIdentified(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})

	w := &fakeWriter{}
	p := &Projector{client: w, logger: logger}

	p.OnIdentified(context.Background(), nil)
	p.OnIdentified(context.Background(), &identity.Result{})
	assert.Equal(t, 0, w.calls)

	result := &identity.Result{Contacts: []models.Contact{contact(1, "doc@hillvalley.edu", "", nil)}}
	p.OnIdentified(context.Background(), result)
	assert.Equal(t, 1, w.calls)

	w.err = errors.New("bolt connection refused")
	assert.NotPanics(t, func() { p.OnIdentified(context.Background(), result) })
	assert.EqualError(t, p.Project(context.Background(), result.Contacts), "bolt connection refused")
}
