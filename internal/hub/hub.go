package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/pokerboard-backend/internal/models"
	"github.com/DoyleJ11/pokerboard-backend/internal/room"
	"github.com/DoyleJ11/pokerboard-backend/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAnonymous       = errors.New("anonymous user")
	ErrSessionClosed   = errors.New("session is not in progress")
	ErrNotMember       = errors.New("user is not a member of the board")
	ErrHubClosed       = errors.New("hub closed")
)

type HubMsg interface{ isHubMsg() }

// Attach returns the session's room, starting it if needed, and counts one
// more connection against it.
type Attach struct {
	SessionID uint
	Reply     chan *room.Room
}

// Detach releases one connection. The room shuts down when its last
// connection detaches.
type Detach struct {
	SessionID uint
}

type GetRoom struct {
	SessionID uint
	Reply     chan *room.Room // nil when no room is running
}

type ShutdownHub struct{}

func (Attach) isHubMsg()      {}
func (Detach) isHubMsg()      {}
func (GetRoom) isHubMsg()     {}
func (ShutdownHub) isHubMsg() {}

// Checker answers the admission questions for a connection.
type Checker interface {
	LoadSession(ctx context.Context, sessionID uint) (store.SessionFacts, error)
	IsBoardMember(ctx context.Context, boardID uint, user models.User) (bool, error)
}

type entry struct {
	room  *room.Room
	conns int
}

type Hub struct {
	inbox    chan HubMsg
	rooms    map[uint]*entry
	roomOpts room.Options
	checker  Checker
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub starts the hub loop. Every room it creates is built from opts.
func NewHub(parent context.Context, checker Checker, opts room.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[uint]*entry),
		roomOpts: opts,
		checker:  checker,
		log:      opts.Log.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Admit decides whether user may connect to the session. It runs on the
// caller's goroutine so slow lookups never stall the hub loop.
func (h *Hub) Admit(ctx context.Context, sessionID uint, user models.User) (store.SessionFacts, error) {
	if user.ID == 0 {
		return store.SessionFacts{}, ErrAnonymous
	}

	facts, err := h.checker.LoadSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return store.SessionFacts{}, ErrSessionNotFound
	}
	if err != nil {
		return store.SessionFacts{}, err
	}
	if facts.Status.Terminal() {
		return facts, ErrSessionClosed
	}

	ok, err := h.checker.IsBoardMember(ctx, facts.BoardID, user)
	if err != nil {
		return facts, err
	}
	if !ok {
		return facts, ErrNotMember
	}
	return facts, nil
}

// Attach is the blocking form of the Attach message.
func (h *Hub) Attach(ctx context.Context, sessionID uint) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	select {
	case h.inbox <- Attach{SessionID: sessionID, Reply: reply}:
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		if r == nil {
			return nil, ErrHubClosed
		}
		return r, nil
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	case <-ctx.Done():
		// The hub still counted us; give the slot back.
		go h.Detach(sessionID)
		return nil, ctx.Err()
	}
}

func (h *Hub) Detach(sessionID uint) {
	select {
	case h.inbox <- Detach{SessionID: sessionID}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Attach:
				e := h.rooms[msg.SessionID]
				if e == nil {
					e = &entry{room: room.New(h.ctx, msg.SessionID, h.roomOpts)}
					h.rooms[msg.SessionID] = e
					h.log.Debug("room started", zap.Uint("session_id", msg.SessionID))
				}
				e.conns++
				msg.Reply <- e.room

			case Detach:
				e := h.rooms[msg.SessionID]
				if e == nil {
					break
				}
				e.conns--
				if e.conns > 0 {
					break
				}
				delete(h.rooms, msg.SessionID)
				e.room.Send(room.Shutdown{})
				h.log.Debug("room stopped", zap.Uint("session_id", msg.SessionID))

			case GetRoom:
				if e := h.rooms[msg.SessionID]; e != nil {
					msg.Reply <- e.room
					break
				}
				msg.Reply <- nil

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, e := range h.rooms {
		e.room.Send(room.Shutdown{})
	}
	clear(h.rooms)
	h.cancel()
}
