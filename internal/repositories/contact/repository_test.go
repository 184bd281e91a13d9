package contact

import (
	"errors"
	"testing"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowToModel(t *testing.T) {
	email := "a@x.com"
	linked := int64(1)
	now := time.Now().UTC()

	c, err := row{
		ID:             2,
		Email:          &email,
		LinkedID:       &linked,
		LinkPrecedence: "secondary",
		CreatedAt:      now,
		UpdatedAt:      now,
	}.toModel()
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.ID)
	assert.Equal(t, models.LinkPrecedenceSecondary, c.LinkPrecedence)
	assert.Equal(t, &email, c.Email)
	assert.Nil(t, c.PhoneNumber)
}

func TestRowToModel_RejectsUnknownPrecedence(t *testing.T) {
	_, err := toModels([]row{{ID: 1, LinkPrecedence: "primary"}, {ID: 2, LinkPrecedence: "PRIMARY"}})
	assert.ErrorContains(t, err, "contact 2")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, want: true},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, want: true},
		{name: "unique violation wrapped", err: pkgerrors.Wrap(&pq.Error{Code: "23505"}, "failed to insert contact"), want: true},
		{name: "syntax error", err: &pq.Error{Code: "42601"}},
		{name: "plain error", err: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
