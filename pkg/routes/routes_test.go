package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identitypkg "github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/health"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func newTestServer(t *testing.T) (*echo.Echo, *identitypkg.MemoryStore) {
	t.Helper()
	store := identitypkg.NewMemoryStore()
	svc := identitypkg.NewService(store, testLogger())
	e := NewServer(ServerConfig{AppName: "fern-test"}, Dependencies{
		Identifier: svc,
		Lister:     svc,
		Checker:    health.NewChecker("test"),
		Logger:     testLogger(),
	})
	return e, store
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func identify(t *testing.T, e *echo.Echo, body string) models.IdentityView {
	t.Helper()
	rec := do(e, http.MethodPost, "/api/identify", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Contact
}

func TestIdentify_Consolidates(t *testing.T) {
	e, _ := newTestServer(t)

	first := identify(t, e, `{"email":"lorraine@hillvalley.edu","phoneNumber":"123456"}`)
	assert.Equal(t, []int64{}, first.SecondaryContactIDs)

	view := identify(t, e, `{"email":"mcfly@hillvalley.edu","phoneNumber":123456}`)
	assert.Equal(t, first.PrimaryContactID, view.PrimaryContactID)
	assert.Equal(t, []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"}, view.Emails)
	assert.Equal(t, []string{"123456"}, view.PhoneNumbers)
	assert.Len(t, view.SecondaryContactIDs, 1)

	byPhone := identify(t, e, `{"phoneNumber":"123456"}`)
	assert.Equal(t, view, byPhone)

	nullEmail := identify(t, e, `{"email":null,"phoneNumber":"123456"}`)
	assert.Equal(t, view, nullEmail)
}

func TestIdentify_MergesPrimaries(t *testing.T) {
	e, _ := newTestServer(t)

	george := identify(t, e, `{"email":"george@hillvalley.edu","phoneNumber":"919191"}`)
	identify(t, e, `{"email":"biffsucks@hillvalley.edu","phoneNumber":"717171"}`)

	view := identify(t, e, `{"email":"george@hillvalley.edu","phoneNumber":"717171"}`)
	assert.Equal(t, george.PrimaryContactID, view.PrimaryContactID)
	assert.Equal(t, []string{"george@hillvalley.edu", "biffsucks@hillvalley.edu"}, view.Emails)
	assert.Equal(t, []string{"919191", "717171"}, view.PhoneNumbers)
	assert.Equal(t, []int64{2}, view.SecondaryContactIDs)
}

func TestIdentify_BadRequests(t *testing.T) {
	e, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: `{}`},
		{name: "both null", body: `{"email":null,"phoneNumber":null}`},
		{name: "empty strings", body: `{"email":"","phoneNumber":""}`},
		{name: "malformed json", body: `{"email":`},
		{name: "phone is an object", body: `{"phoneNumber":{"n":1}}`},
		{name: "phone is a fraction", body: `{"phoneNumber":12.5}`},
		{name: "phone in exponent form", body: `{"email":"a@x.com","phoneNumber":1.5e3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/identify", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Message)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

type failingIdentifier struct {
	err error
}

func (f failingIdentifier) Identify(context.Context, identitypkg.Observation) (*identitypkg.Result, error) {
	return nil, f.err
}

func (f failingIdentifier) List(context.Context) ([]models.Contact, error) {
	return nil, f.err
}

func TestIdentify_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		kind identitypkg.Kind
		want int
	}{
		{name: "store unavailable", kind: identitypkg.KindStoreUnavailable, want: http.StatusServiceUnavailable},
		{name: "no primary", kind: identitypkg.KindNoPrimaryFound, want: http.StatusInternalServerError},
		{name: "not found", kind: identitypkg.KindNotFound, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := failingIdentifier{err: &identitypkg.Error{Kind: tt.kind, Op: "identity.Identify", Err: errors.New("boom")}}
			e := NewServer(ServerConfig{AppName: "fern-test"}, Dependencies{Identifier: f, Lister: f, Logger: testLogger()})

			assert.Equal(t, tt.want, do(e, http.MethodPost, "/api/identify", `{"email":"doc@hillvalley.edu"}`).Code)
			assert.Equal(t, tt.want, do(e, http.MethodGet, "/api/contacts", "").Code)
		})
	}
}

func TestListContacts(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, http.MethodGet, "/api/contacts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	identify(t, e, `{"email":"doc@hillvalley.edu","phoneNumber":"555"}`)
	identify(t, e, `{"email":"emmett@hillvalley.edu","phoneNumber":"555"}`)

	rec = do(e, http.MethodGet, "/api/contacts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var contacts []models.Contact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &contacts))
	require.Len(t, contacts, 2)
	assert.Equal(t, models.LinkPrecedencePrimary, contacts[0].LinkPrecedence)
	assert.Equal(t, models.LinkPrecedenceSecondary, contacts[1].LinkPrecedence)
	assert.Equal(t, contacts[0].ID, *contacts[1].LinkedID)
}

func TestHelloHealthAndMetrics(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Hello World!"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"UP"`)

	identify(t, e, `{"email":"doc@hillvalley.edu"}`)
	rec = do(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fern_identity_identify_requests_total")
}
