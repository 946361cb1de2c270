package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/pokerboard-backend/internal/auth"
	"github.com/DoyleJ11/pokerboard-backend/internal/engine"
	"github.com/DoyleJ11/pokerboard-backend/internal/hub"
	"github.com/DoyleJ11/pokerboard-backend/internal/models"
	"github.com/DoyleJ11/pokerboard-backend/internal/room"
	"github.com/DoyleJ11/pokerboard-backend/internal/store/storetest"
	"github.com/DoyleJ11/pokerboard-backend/internal/ws"
)

type server struct {
	f      storetest.Fixture
	url    string
	tokens auth.StoreResolver
}

func newServer(t *testing.T) server {
	t.Helper()
	f := storetest.Seed(t, engine.DeckFibonacci)

	h := hub.NewHub(context.Background(), f.Store, room.Options{Backend: f.Store})
	t.Cleanup(h.Shutdown)

	tokens := auth.StoreResolver{Store: f.Store}
	a := &auth.Authenticator{Token: tokens}

	r := chi.NewRouter()
	r.With(a.Require).Get("/ws/sessions/{sessionID}", ws.Handler(h, ws.Config{OutboxSize: 8}, nil))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return server{f: f, url: "ws" + strings.TrimPrefix(srv.URL, "http"), tokens: tokens}
}

func (s server) dial(t *testing.T, user models.User, sessionID uint) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	token, err := s.tokens.Issue(context.Background(), user.ID, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	target := s.url + "/ws/sessions/" + strconv.FormatUint(uint64(sessionID), 10) + "?token=" + token
	return websocket.Dial(ctx, target, nil)
}

func (s server) connect(t *testing.T, user models.User) *websocket.Conn {
	t.Helper()
	c, _, err := s.dial(t, user, s.f.Session.ID)
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

// readType reads frames until one has the wanted type or error key.
func readType(t *testing.T, c *websocket.Conn, want string) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		if m["type"] == want || (want == "error" && m["error"] != nil) {
			return m
		}
	}
}

func write(t *testing.T, c *websocket.Conn, raw string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(raw)))
}

func TestHandler_RoundTrip(t *testing.T) {
	s := newServer(t)
	mgr := s.connect(t, s.f.Manager)
	readType(t, mgr, "update")
	alice := s.connect(t, s.f.Alice)

	got := readType(t, mgr, "update")
	for len(got["users"].([]any)) != 2 {
		got = readType(t, mgr, "update")
	}

	write(t, alice, `{"message_type":"vote","message":{"estimate":13}}`)
	for _, c := range []*websocket.Conn{mgr, alice} {
		v := readType(t, c, "vote")["vote"].(map[string]any)
		assert.Equal(t, float64(13), v["estimate"])
	}

	write(t, alice, `{"message_type":"skip"}`)
	assert.Equal(t, "Can't skip", readType(t, alice, "error")["error"])

	write(t, mgr, `{"message_type":"skip"}`)
	readType(t, mgr, "skip")
	readType(t, alice, "skip")
}

func TestHandler_DisconnectAnnouncesUpdate(t *testing.T) {
	s := newServer(t)
	mgr := s.connect(t, s.f.Manager)
	alice := s.connect(t, s.f.Alice)

	got := readType(t, mgr, "update")
	for len(got["users"].([]any)) != 2 {
		got = readType(t, mgr, "update")
	}

	alice.Close(websocket.StatusNormalClosure, "bye")
	got = readType(t, mgr, "update")
	require.Len(t, got["users"], 1)
	assert.Equal(t, s.f.Manager.Email, got["users"].([]any)[0].(map[string]any)["email"])
}

func TestHandler_Admission(t *testing.T) {
	s := newServer(t)
	closed := storetest.AddSession(t, s.f, s.f.Tickets[2], engine.StatusEstimated)

	tests := []struct {
		name    string
		user    models.User
		session uint
		want    int
	}{
		{"not invited", s.f.Eve, s.f.Session.ID, http.StatusForbidden},
		{"invite pending", s.f.Bob, s.f.Session.ID, http.StatusForbidden},
		{"unknown session", s.f.Manager, 777, http.StatusNotFound},
		{"closed session", s.f.Manager, closed.ID, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := s.dial(t, tt.user, tt.session)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	t.Run("no token", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, resp, err := websocket.Dial(ctx, s.url+"/ws/sessions/1", nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
