// Package hub owns the process-wide registry of match sessions and
// tournament rooms, and the identity-to-connection router used for
// reconnection. The registry is constructed once at startup and
// injected; nothing here is package-global.
package hub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pongarena/backend/internal/auth"
	"github.com/pongarena/backend/internal/match"
	"github.com/pongarena/backend/internal/store"
	"github.com/pongarena/backend/internal/tournament"
)

type HubMsg interface{ isHubMsg() }

type CreateMatch struct {
	Mode  match.Mode
	Reply chan *match.Session
}

type GetMatch struct {
	ID    string
	Reply chan *match.Session
}

// registerMatch adds a session created by a tournament room so the
// transport can route match sockets to it.
type registerMatch struct{ Session *match.Session }

type RemoveMatch struct{ ID string }

type CreateRoom struct {
	Size    int
	Creator string
	Reply   chan *tournament.Room
}

type GetRoom struct {
	ID    string
	Reply chan *tournament.Room
}

type RemoveRoom struct{ ID string }

type ShutdownHub struct{}

func (CreateMatch) isHubMsg()   {}
func (GetMatch) isHubMsg()      {}
func (registerMatch) isHubMsg() {}
func (RemoveMatch) isHubMsg()   {}
func (CreateRoom) isHubMsg()    {}
func (GetRoom) isHubMsg()       {}
func (RemoveRoom) isHubMsg()    {}
func (ShutdownHub) isHubMsg()   {}

// Opts carry the collaborators every session and room gets.
type Opts struct {
	Clock      clockwork.Clock
	TickPeriod time.Duration
	Verifier   auth.Verifier
	Sink       store.ResultSink
	Log        *zap.Logger
}

type Hub struct {
	inbox   chan HubMsg
	matches map[string]*match.Session
	rooms   map[string]*tournament.Room
	router  *Router
	opts    Opts
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, opts Opts) *Hub {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Sink == nil {
		opts.Sink = store.NopSink{}
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		matches: make(map[string]*match.Session),
		rooms:   make(map[string]*tournament.Room),
		router:  NewRouter(),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Router exposes the identity→connection map shared across sessions.
func (h *Hub) Router() *Router { return h.router }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateMatch:
				s := match.NewSession(h.ctx, match.Opts{
					ID:         uuid.NewString(),
					Mode:       msg.Mode,
					Clock:      h.opts.Clock,
					TickPeriod: h.opts.TickPeriod,
					Verifier:   h.opts.Verifier,
					Sink:       h.opts.Sink,
					Log:        h.opts.Log,
				})
				h.track(s)
				msg.Reply <- s

			case GetMatch:
				msg.Reply <- h.matches[msg.ID] // may be nil

			case registerMatch:
				h.track(msg.Session)

			case RemoveMatch:
				delete(h.matches, msg.ID)

			case CreateRoom:
				r, err := tournament.NewRoom(h.ctx, tournament.Opts{
					ID:           uuid.NewString(),
					ExpectedSize: msg.Size,
					Creator:      msg.Creator,
					Clock:        h.opts.Clock,
					TickPeriod:   h.opts.TickPeriod,
					Verifier:     h.opts.Verifier,
					Sink:         h.opts.Sink,
					Log:          h.opts.Log,
					OnSession: func(s *match.Session) {
						h.inbox <- registerMatch{Session: s}
					},
					OnEmpty: func(id string) {
						h.inbox <- RemoveRoom{ID: id}
					},
				})
				if err != nil {
					h.opts.Log.Warn("room creation rejected", zap.Error(err))
					msg.Reply <- nil
					break
				}
				h.rooms[r.ID()] = r
				msg.Reply <- r

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case RemoveRoom:
				delete(h.rooms, msg.ID)
				h.router.ReleaseRoom(msg.ID)

			case ShutdownHub:
				for _, s := range h.matches {
					s.Inbox() <- match.Shutdown{}
				}
				for _, r := range h.rooms {
					r.Inbox() <- tournament.Shutdown{}
				}
				clear(h.matches)
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}

// track indexes a session and removes it again once it terminates, so
// finished casual matches don't accumulate.
func (h *Hub) track(s *match.Session) {
	h.matches[s.ID()] = s
	go func() {
		<-s.Done()
		select {
		case h.inbox <- RemoveMatch{ID: s.ID()}:
		case <-h.ctx.Done():
		}
	}()
}
