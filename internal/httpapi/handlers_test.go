package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/pokerboard-backend/internal/auth"
	"github.com/DoyleJ11/pokerboard-backend/internal/engine"
	"github.com/DoyleJ11/pokerboard-backend/internal/httpapi"
	"github.com/DoyleJ11/pokerboard-backend/internal/hub"
	"github.com/DoyleJ11/pokerboard-backend/internal/models"
	"github.com/DoyleJ11/pokerboard-backend/internal/room"
	"github.com/DoyleJ11/pokerboard-backend/internal/store/storetest"
)

type api struct {
	f       storetest.Fixture
	handler http.Handler
	tokens  auth.StoreResolver
}

func newAPI(t *testing.T) api {
	t.Helper()
	f := storetest.Seed(t, engine.DeckSeries)
	h := hub.NewHub(context.Background(), f.Store, room.Options{Backend: f.Store})
	t.Cleanup(h.Shutdown)

	tokens := auth.StoreResolver{Store: f.Store}
	return api{
		f:      f,
		tokens: tokens,
		handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:   h,
			Store: f.Store,
			Auth:  &auth.Authenticator{Token: tokens},
		}),
	}
}

func (a api) do(t *testing.T, user *models.User, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != nil {
		token, err := a.tokens.Issue(context.Background(), user.ID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Token "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func boardPath(f storetest.Fixture, suffix string) string {
	return "/pokerboards/" + itoa(f.Board.ID) + suffix
}

func itoa(n uint) string { return strconv.FormatUint(uint64(n), 10) }

func TestHealthz(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, nil, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequiresAuth(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, nil, http.MethodGet, "/votes", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateSession(t *testing.T) {
	a := newAPI(t)
	f := a.f
	path := boardPath(f, "/sessions")
	body := `{"ticket":` + itoa(f.Tickets[1].ID) + `}`

	rec := a.do(t, &f.Alice, http.MethodPost, path, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, &f.Manager, http.MethodPost, path, body)
	assert.Equal(t, http.StatusConflict, rec.Code, "board already has an active session")

	rec = a.do(t, &f.Manager, http.MethodPost, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, &f.Manager, http.MethodPost, "/pokerboards/999/sessions", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.Store.Skip(context.Background(), f.Session.ID))

	rec = a.do(t, &f.Manager, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var gs struct {
		ID     uint `json:"id"`
		Status int  `json:"status"`
		Ticket struct {
			Ref string `json:"ticket_id"`
		} `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gs))
	assert.NotZero(t, gs.ID)
	assert.Equal(t, int(engine.StatusInProgress), gs.Status)
	assert.Equal(t, "KD-2", gs.Ticket.Ref)
}

func TestActiveSession(t *testing.T) {
	a := newAPI(t)
	f := a.f
	path := boardPath(f, "/session")

	rec := a.do(t, &f.Alice, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var gs struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gs))
	assert.Equal(t, f.Session.ID, gs.ID)

	rec = a.do(t, &f.Eve, http.MethodGet, path, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, f.Store.Skip(context.Background(), f.Session.ID))
	rec = a.do(t, &f.Manager, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReorder(t *testing.T) {
	a := newAPI(t)
	f := a.f
	path := boardPath(f, "/tickets/order")
	body := `[{"ticket_id":"KD-4","rank":1},{"ticket_id":"NOPE","rank":9},{"ticket_id":"KD-1","rank":4}]`

	rec := a.do(t, &f.Alice, http.MethodPut, path, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, &f.Manager, http.MethodPut, path, `{"nope":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, &f.Manager, http.MethodPut, path, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var applied []engine.RankPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &applied))
	assert.Equal(t, []engine.RankPair{{Ref: "KD-1", Rank: 4}, {Ref: "KD-4", Rank: 1}}, applied)
}

func TestVotedTickets(t *testing.T) {
	a := newAPI(t)
	f := a.f
	ctx := context.Background()

	rec := a.do(t, &f.Alice, http.MethodGet, "/votes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	_, err := f.Store.UpsertVote(ctx, f.Session.ID, f.Alice.ID, 3)
	require.NoError(t, err)
	require.NoError(t, f.Store.FinalizeEstimate(ctx, f.Session.ID, f.Tickets[0].ID, 3))

	rec = a.do(t, &f.Alice, http.MethodGet, "/votes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tickets []models.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tickets))
	require.Len(t, tickets, 1)
	assert.Equal(t, "KD-1", tickets[0].Ref)
	require.NotNil(t, tickets[0].Estimate)
	assert.Equal(t, 3, *tickets[0].Estimate)
}
