// Package storetest builds seeded in-memory stores for tests.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pokerboard-backend/internal/engine"
	"github.com/DoyleJ11/pokerboard-backend/internal/models"
	"github.com/DoyleJ11/pokerboard-backend/internal/store"
)

// Fixture is one board with four ranked tickets and an IN_PROGRESS session
// on the first. Alice accepted her invite, Bob did not, Eve has none.
type Fixture struct {
	Store   *store.Store
	Manager models.User
	Alice   models.User
	Bob     models.User
	Eve     models.User
	Board   models.Pokerboard
	Tickets []models.Ticket
	Session models.GameSession
}

func New(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Seed(t testing.TB, deck engine.DeckType) Fixture {
	t.Helper()
	s := New(t)
	db := s.DB()

	f := Fixture{Store: s}
	users := []*models.User{&f.Manager, &f.Alice, &f.Bob, &f.Eve}
	for i, name := range []string{"manager", "alice", "bob", "eve"} {
		*users[i] = models.User{Email: name + "@example.com", FirstName: name, LastName: "Test"}
		require.NoError(t, db.Create(users[i]).Error)
	}

	f.Board = models.Pokerboard{ManagerID: f.Manager.ID, Title: "sprint-1", DeckType: deck, DurationSeconds: 60}
	require.NoError(t, db.Omit("Manager").Create(&f.Board).Error)

	invites := []models.Invite{
		{PokerboardID: f.Board.ID, Invitee: f.Alice.Email, Accepted: true},
		{PokerboardID: f.Board.ID, Invitee: f.Bob.Email, Accepted: false},
	}
	require.NoError(t, db.Omit("Pokerboard").Create(&invites).Error)

	for i := 0; i < 4; i++ {
		tk := models.Ticket{PokerboardID: f.Board.ID, Ref: fmt.Sprintf("KD-%d", i+1), Rank: i + 1}
		require.NoError(t, db.Omit("Pokerboard").Create(&tk).Error)
		f.Tickets = append(f.Tickets, tk)
	}

	gs, err := s.CreateSession(context.Background(), f.Board.ID, f.Tickets[0].ID)
	require.NoError(t, err)
	f.Session = gs
	return f
}

// AddSession inserts a session with an arbitrary status, bypassing the
// one-active-session rule.
func AddSession(t testing.TB, f Fixture, ticket models.Ticket, status engine.Status) models.GameSession {
	t.Helper()
	gs := models.GameSession{TicketID: ticket.ID, Status: status}
	require.NoError(t, f.Store.DB().Omit("Ticket").Create(&gs).Error)
	return gs
}
