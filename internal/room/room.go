package room

import (
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pokerboard-backend/internal/models"
	"github.com/DoyleJ11/pokerboard-backend/internal/protocol"
	"github.com/DoyleJ11/pokerboard-backend/internal/store"
)

// Backend is the persistence a room needs while a round runs.
type Backend interface {
	LoadSession(ctx context.Context, sessionID uint) (store.SessionFacts, error)
	UpsertVote(ctx context.Context, sessionID, userID uint, estimate int) (models.Vote, error)
	Votes(ctx context.Context, sessionID uint) ([]models.Vote, error)
	FinalizeEstimate(ctx context.Context, sessionID, ticketID uint, estimate int) error
	Skip(ctx context.Context, sessionID uint) error
	StartTimer(ctx context.Context, sessionID uint, at time.Time) error
}

type Msg interface{ isRoomMsg() }

// Join registers one connection. The same user may join more than once.
type Join struct {
	ConnID string
	User   models.User
	Outbox chan []byte // closed by the room when it drops the connection
}

func (Join) isRoomMsg() {}

type Leave struct{ ConnID string }

func (Leave) isRoomMsg() {}

// FromClient carries one raw inbound frame.
type FromClient struct {
	ConnID string
	Data   []byte
}

func (FromClient) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Conns      int
	Identities []models.User // one per connection, in join order
	Members    []models.User // deduplicated by user ID
}

type Options struct {
	Backend Backend
	Log     *zap.Logger
	Now     func() time.Time
	Tracer  trace.Tracer
}

type client struct {
	user   models.User
	outbox chan []byte
	seq    uint64
}

// Room owns one session's connections. All reads and writes of the
// session's state happen on the room's goroutine, so actions within a
// session are applied one at a time in arrival order.
type Room struct {
	sessionID uint
	inbox     chan Msg
	clients   map[string]*client
	seq       uint64
	backend   Backend
	log       *zap.Logger
	now       func() time.Time
	tracer    trace.Tracer
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(parent context.Context, sessionID uint, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)

	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/DoyleJ11/pokerboard-backend/internal/room")
	}

	r := &Room{
		sessionID: sessionID,
		inbox:     make(chan Msg, 64),
		clients:   make(map[string]*client),
		backend:   opts.Backend,
		log:       opts.Log.With(zap.Uint("session_id", sessionID)),
		now:       opts.Now,
		tracer:    opts.Tracer,
		ctx:       ctx,
		cancel:    cancel,
	}

	go r.loop()
	return r
}

func (r *Room) SessionID() uint { return r.sessionID }

// Send queues m for the room. It reports false once the room has shut down.
func (r *Room) Send(m Msg) bool {
	select {
	case <-r.ctx.Done():
		return false
	default:
	}

	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// Done is closed when the room stops.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.seq++
				r.clients[msg.ConnID] = &client{user: msg.User, outbox: msg.Outbox, seq: r.seq}
				r.log.Debug("connection joined", zap.String("conn_id", msg.ConnID), zap.Uint("user_id", msg.User.ID))
				r.announceMembers()

			case Leave:
				if _, ok := r.clients[msg.ConnID]; !ok {
					break
				}
				delete(r.clients, msg.ConnID)
				r.log.Debug("connection left", zap.String("conn_id", msg.ConnID))
				r.announceMembers()

			case FromClient:
				c, ok := r.clients[msg.ConnID]
				if !ok {
					break
				}
				r.handle(msg.ConnID, c, msg.Data)

			case GetState:
				msg.Reply <- View{
					Conns:      len(r.clients),
					Identities: r.identities(),
					Members:    r.members(),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, c := range r.clients {
		close(c.outbox)
		delete(r.clients, id)
	}
	r.cancel()
}

// identities lists the user behind every connection, duplicates included.
func (r *Room) identities() []models.User {
	ordered := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		ordered = append(ordered, c)
	}
	slices.SortFunc(ordered, func(a, b *client) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	out := make([]models.User, len(ordered))
	for i, c := range ordered {
		out[i] = c.user
	}
	return out
}

// members is the display view: one entry per user, first connection wins.
func (r *Room) members() []models.User {
	seen := map[uint]bool{}
	var out []models.User
	for _, u := range r.identities() {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out
}

func (r *Room) memberViews() []protocol.UserView {
	members := r.members()
	out := make([]protocol.UserView, len(members))
	for i, u := range members {
		out[i] = protocol.NewUserView(u)
	}
	return out
}

// announceMembers tells everyone who is connected. Dropping a slow client
// changes the list, so repeat until a broadcast drops nobody.
func (r *Room) announceMembers() {
	for len(r.clients) > 0 {
		payload, err := protocol.Encode(protocol.TypeUpdate, protocol.Members{Users: r.memberViews()})
		if err != nil {
			r.log.Error("encode member list", zap.Error(err))
			return
		}
		if r.broadcast(payload) == 0 {
			return
		}
	}
}

// broadcast delivers payload to every connection without blocking. A
// connection whose outbox is full is dropped. Returns how many were dropped.
func (r *Room) broadcast(payload []byte) int {
	dropped := 0
	for id, c := range r.clients {
		select {
		case c.outbox <- payload:
		default:
			r.drop(id, c)
			dropped++
		}
	}
	return dropped
}

func (r *Room) sendPrivate(connID string, payload []byte) {
	c, ok := r.clients[connID]
	if !ok {
		return
	}
	select {
	case c.outbox <- payload:
	default:
		r.drop(connID, c)
		r.announceMembers()
	}
}

func (r *Room) drop(connID string, c *client) {
	r.log.Warn("dropping slow connection", zap.String("conn_id", connID), zap.Uint("user_id", c.user.ID))
	close(c.outbox)
	delete(r.clients, connID)
}
