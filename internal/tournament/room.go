// Package tournament owns single-elimination bracket progression for
// one tournament instance: room formation, the seeded draw, round
// advancement and walkover decisions. A Room is an actor in the same
// mold as a match Session; its mutations are confined to one goroutine.
package tournament

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pongarena/backend/internal/auth"
	"github.com/pongarena/backend/internal/match"
	"github.com/pongarena/backend/internal/protocol"
	"github.com/pongarena/backend/internal/sim"
	"github.com/pongarena/backend/internal/store"
)

var (
	ErrBadSize  = errors.New("tournament size must be 4, 8 or 16")
	ErrRoomFull = errors.New("room is full")
)

// randPerm is swapped out in tests for a deterministic draw.
var randPerm = rand.Perm

// Participant is one tournament entrant. The connection reference is
// weak: losing it marks the participant offline but never removes them.
type Participant struct {
	SeedIndex    int
	Key          string // durable identity: token or anonymous session id
	Nickname     string
	Outbox       chan protocol.ServerMsg // nil while offline
	StillInRound bool
	Online       bool
}

// BracketMatch is one node of the bracket. It owns an embedded match
// session once its round starts.
type BracketMatch struct {
	ID         string
	Round      int
	Left       *Participant
	Right      *Participant
	Decided    bool
	Started    bool
	LeftScore  int
	RightScore int
	Session    *match.Session
}

// Opts configure a Room. OnSession is invoked for every bracket match
// session the room creates so the transport can route connections to
// it; OnEmpty fires when the last participant's liveness drops.
type Opts struct {
	ID           string
	ExpectedSize int
	Creator      string
	Clock        clockwork.Clock
	TickPeriod   time.Duration
	Verifier     auth.Verifier
	Sink         store.ResultSink
	Log          *zap.Logger
	OnSession    func(*match.Session)
	OnEmpty      func(roomID string)
}

type Room struct {
	id           string
	expectedSize int
	totalRounds  int
	creator      string
	clock        clockwork.Clock
	tickPeriod   time.Duration
	verifier     auth.Verifier
	sink         store.ResultSink
	log          *zap.Logger
	onSession    func(*match.Session)
	onEmpty      func(string)

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan Msg

	participants []*Participant
	matches      map[string]*BracketMatch
	currentRound int
	locked       bool
	done         bool
	champion     *Participant
}

func NewRoom(parent context.Context, opts Opts) (*Room, error) {
	switch opts.ExpectedSize {
	case 4, 8, 16:
	default:
		return nil, ErrBadSize
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:           opts.ID,
		expectedSize: opts.ExpectedSize,
		totalRounds:  rounds(opts.ExpectedSize),
		creator:      opts.Creator,
		clock:        opts.Clock,
		tickPeriod:   opts.TickPeriod,
		verifier:     opts.Verifier,
		sink:         opts.Sink,
		log:          opts.Log,
		onSession:    opts.OnSession,
		onEmpty:      opts.OnEmpty,
		ctx:          ctx,
		cancel:       cancel,
		inbox:        make(chan Msg, 64),
		matches:      make(map[string]*BracketMatch),
	}
	go r.loop()
	return r, nil
}

func rounds(size int) int {
	n := 0
	for size > 1 {
		size /= 2
		n++
	}
	return n
}

func (r *Room) ID() string { return r.id }

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)
			case Leave:
				r.handleLeave(msg)
			case matchStarted:
				r.handleMatchStarted(msg.MatchID)
			case matchResult:
				r.handleMatchResult(msg.MatchID, msg.Result)
			case GetState:
				msg.Reply <- r.view()
			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(m Join) {
	// A known identity is a reconnection attempt, not a new entrant.
	if p := r.findParticipant(m.Key); p != nil {
		r.reconnect(p, m.Outbox)
		return
	}

	if r.locked {
		// Identity list is immutable once the draw happened.
		r.rejectJoin(m, protocol.EvtMatchAlreadyStarted)
		return
	}
	if len(r.participants) >= r.expectedSize {
		r.rejectJoin(m, "room_full")
		return
	}

	p := &Participant{
		SeedIndex:    len(r.participants),
		Key:          m.Key,
		Nickname:     m.Nickname,
		Outbox:       m.Outbox,
		StillInRound: true,
		Online:       true,
	}
	r.participants = append(r.participants, p)
	r.log.Info("participant joined",
		zap.String("room", r.id),
		zap.String("nickname", m.Nickname),
		zap.Int("players_in", len(r.participants)))

	if len(r.participants) == r.expectedSize {
		r.lockAndDraw()
	}
	r.broadcastUpdate()
}

// reconnect swaps the participant's connection to the new socket when
// the tournament has not started; otherwise the new socket is rejected,
// since mid-tournament reconnection is not supported.
func (r *Room) reconnect(p *Participant, outbox chan protocol.ServerMsg) {
	if r.locked {
		select {
		case outbox <- protocol.NewEvent(protocol.EvtMatchAlreadyStarted):
		default:
		}
		close(outbox)
		return
	}

	if p.Outbox != nil {
		select {
		case p.Outbox <- protocol.NewEvent(protocol.EvtConnectionReplaced):
		default:
		}
		close(p.Outbox)
	}
	p.Outbox = outbox
	p.Online = true
	r.broadcastUpdate()
}

func (r *Room) rejectJoin(m Join, reason string) {
	select {
	case m.Outbox <- protocol.NewEvent(reason):
	default:
	}
	close(m.Outbox)
}

func (r *Room) handleLeave(m Leave) {
	p := r.findParticipant(m.Key)
	if p == nil {
		return
	}
	if m.Outbox != nil && p.Outbox != m.Outbox {
		// A stale socket's teardown; the participant already moved to a
		// newer connection.
		return
	}
	p.Online = false
	p.Outbox = nil

	if !r.locked {
		// Before the draw the roster is still fluid.
		r.removeParticipant(p)
		r.broadcastUpdate()
	} else {
		// Locked: identity stays, only liveness changes. Any of their
		// matches that has not started is an immediate walkover.
		for _, bm := range r.matches {
			if bm.Decided || bm.Started {
				continue
			}
			if bm.Left == p || bm.Right == p {
				r.walkover(bm, p)
			}
		}
		r.broadcastUpdate()
	}

	if r.allOffline() {
		r.log.Info("room abandoned", zap.String("room", r.id))
		if r.onEmpty != nil {
			r.onEmpty(r.id)
		}
		r.cancel()
	}
}

func (r *Room) removeParticipant(p *Participant) {
	for i, q := range r.participants {
		if q == p {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			break
		}
	}
	for i, q := range r.participants {
		q.SeedIndex = i
	}
}

func (r *Room) allOffline() bool {
	if len(r.participants) == 0 {
		return true
	}
	for _, p := range r.participants {
		if p.Online {
			return false
		}
	}
	return true
}

// lockAndDraw freezes the roster, assigns seed indices by a
// uniform-random permutation independent of join order, and creates the
// first round.
func (r *Room) lockAndDraw() {
	r.locked = true
	perm := randPerm(len(r.participants))
	for i, p := range r.participants {
		p.SeedIndex = perm[i]
	}
	r.currentRound = 1
	r.createRoundMatches()
	r.log.Info("tournament drawn",
		zap.String("room", r.id),
		zap.Int("size", r.expectedSize))
}

// createRoundMatches pairs adjacent survivors in seed order. Round r
// has expectedSize / 2^r matches; this is only correct for power-of-two
// sizes, which NewRoom enforces.
//
// Walkovers for offline participants are swept only after the whole
// round exists. Deciding a match inline while its siblings are still
// being created would let nextRoundIfComplete see a fully-decided
// partial round and advance with survivors who never got their match.
func (r *Room) createRoundMatches() {
	survivors := r.survivors()
	created := make([]*BracketMatch, 0, len(survivors)/2)
	for i := 0; i+1 < len(survivors); i += 2 {
		created = append(created, r.createMatch(survivors[i], survivors[i+1]))
	}

	// A participant who is already gone loses their match before it
	// ever starts.
	for _, bm := range created {
		if bm.Decided {
			continue
		}
		if !bm.Left.Online {
			r.walkover(bm, bm.Left)
		} else if !bm.Right.Online {
			r.walkover(bm, bm.Right)
		}
	}
}

func (r *Room) survivors() []*Participant {
	var alive []*Participant
	for _, p := range r.participants {
		if p.StillInRound {
			alive = append(alive, p)
		}
	}
	sort.Slice(alive, func(i, j int) bool {
		return alive[i].SeedIndex < alive[j].SeedIndex
	})
	return alive
}

func (r *Room) createMatch(left, right *Participant) *BracketMatch {
	bm := &BracketMatch{
		ID:    uuid.NewString(),
		Round: r.currentRound,
		Left:  left,
		Right: right,
	}
	r.matches[bm.ID] = bm

	id := bm.ID
	bm.Session = match.NewSession(r.ctx, match.Opts{
		ID:         id,
		Mode:       match.ModeTournament,
		Clock:      r.clock,
		TickPeriod: r.tickPeriod,
		Verifier:   r.verifier,
		Sink:       r.sink,
		Log:        r.log,
		Expected: map[string]sim.Side{
			left.Key:  sim.SideLeft,
			right.Key: sim.SideRight,
		},
		OnStart: func() {
			r.inbox <- matchStarted{MatchID: id}
		},
		OnResult: func(res match.Result) {
			r.inbox <- matchResult{MatchID: id, Result: res}
		},
	})
	if r.onSession != nil {
		r.onSession(bm.Session)
	}

	r.notify(left, protocol.NewMatchReady(bm.ID, protocol.RoleLeft))
	r.notify(right, protocol.NewMatchReady(bm.ID, protocol.RoleRight))
	return bm
}

func (r *Room) handleMatchStarted(matchID string) {
	if bm := r.matches[matchID]; bm != nil {
		bm.Started = true
	}
}

func (r *Room) handleMatchResult(matchID string, res match.Result) {
	bm := r.matches[matchID]
	if bm == nil {
		return
	}
	r.finishMatch(bm, res.LeftScore, res.RightScore)
}

// walkover decides a not-yet-started match in favor of the remaining
// participant with sentinel scores, then advances the bracket exactly
// as for a played match.
func (r *Room) walkover(bm *BracketMatch, loser *Participant) {
	if bm.Decided {
		return
	}
	if bm.Left == loser {
		r.finishMatch(bm, match.WalkoverLoserScore, sim.WinScore)
	} else {
		r.finishMatch(bm, sim.WinScore, match.WalkoverLoserScore)
	}
	bm.Session.Inbox() <- match.Shutdown{}
}

// finishMatch is idempotent: a second result for a decided match is a
// no-op.
func (r *Room) finishMatch(bm *BracketMatch, leftScore, rightScore int) {
	if bm.Decided {
		return
	}
	bm.Decided = true
	bm.LeftScore = leftScore
	bm.RightScore = rightScore

	loser := bm.Left
	winner := bm.Right
	if leftScore > rightScore {
		loser, winner = bm.Right, bm.Left
	}
	loser.StillInRound = false

	r.log.Info("bracket match decided",
		zap.String("room", r.id),
		zap.String("match", bm.ID),
		zap.Int("round", bm.Round),
		zap.String("winner", winner.Nickname))

	r.nextRoundIfComplete()
	r.broadcastUpdate()
}

func (r *Room) nextRoundIfComplete() {
	for _, bm := range r.matches {
		if bm.Round == r.currentRound && !bm.Decided {
			return
		}
	}

	if r.currentRound >= r.totalRounds {
		r.done = true
		for _, p := range r.participants {
			if p.StillInRound {
				r.champion = p
				break
			}
		}
		if r.champion != nil {
			r.broadcast(protocol.NewWinner(r.champion.Nickname))
			r.log.Info("tournament complete",
				zap.String("room", r.id),
				zap.String("champion", r.champion.Nickname))
		}
		return
	}

	r.currentRound++
	r.createRoundMatches()
}

func (r *Room) findParticipant(key string) *Participant {
	if key == "" {
		return nil
	}
	for _, p := range r.participants {
		if p.Key == key {
			return p
		}
	}
	return nil
}

func (r *Room) notify(p *Participant, msg protocol.ServerMsg) {
	if p.Outbox == nil {
		return
	}
	select {
	case p.Outbox <- msg:
	default:
		// Roster liveness is handled by Leave; a full outbox here just
		// loses the notification.
	}
}

// broadcastUpdate pushes the roster to every connected participant so
// clients can render bracket state without polling.
func (r *Room) broadcastUpdate() {
	positions := make([]string, 0, len(r.participants))
	for _, p := range r.bySeed() {
		positions = append(positions, p.Nickname)
	}
	r.broadcast(protocol.NewTournamentUpdate(len(r.participants), r.expectedSize, positions, r.locked))
}

// bySeed returns participants in seed order.
func (r *Room) bySeed() []*Participant {
	ordered := make([]*Participant, len(r.participants))
	copy(ordered, r.participants)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SeedIndex < ordered[j].SeedIndex
	})
	return ordered
}

func (r *Room) broadcast(msg protocol.ServerMsg) {
	for _, p := range r.participants {
		r.notify(p, msg)
	}
}

func (r *Room) shutdown() {
	for _, p := range r.participants {
		if p.Outbox != nil {
			close(p.Outbox)
			p.Outbox = nil
			p.Online = false
		}
	}
	r.cancel()
}
