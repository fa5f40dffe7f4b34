// Package match runs one real-time Pong match: seat assignment,
// readiness/countdown, the fixed-period tick loop, the AI opponent and
// result finalization. A Session is an actor: all of its timers and
// message handlers execute on one goroutine, so the simulation state
// needs no locking.
package match

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pongarena/backend/internal/auth"
	"github.com/pongarena/backend/internal/protocol"
	"github.com/pongarena/backend/internal/sim"
	"github.com/pongarena/backend/internal/store"
)

type Mode string

const (
	ModeCasual     Mode = "casual"
	ModeAI         Mode = "ai"
	ModeTournament Mode = "tournament"
)

type Phase string

const (
	PhaseWaitingForOpponent  Phase = "WAITING_FOR_OPPONENT"
	PhaseWaitingForReadiness Phase = "WAITING_FOR_READINESS"
	PhaseCountdown           Phase = "COUNTDOWN"
	PhaseRunning             Phase = "RUNNING"
	PhaseFinished            Phase = "FINISHED"
)

// WalkoverLoserScore is the sentinel recorded for a seat that lost by
// disconnection.
const WalkoverLoserScore = -1

const (
	defaultTickPeriod = 20 * time.Millisecond
	countdownSteps    = 3
	countdownInterval = time.Second
	aiDecidePeriod    = time.Second
	aiMotorPeriod     = 100 * time.Millisecond
)

// Result is the final outcome a Session reports to its owner.
type Result struct {
	LeftScore  int
	RightScore int
	Winner     sim.Side
	Walkover   bool
}

type seat struct {
	clientID string
	key      string // durable identity (token or session id)
	name     string
	identity *auth.Identity
	ready    bool
	bot      bool
}

// Opts configure a Session. Zero values fall back to production
// defaults (real clock, 20 ms ticks).
type Opts struct {
	ID          string
	Mode        Mode
	Clock       clockwork.Clock
	TickPeriod  time.Duration
	Verifier    auth.Verifier
	Sink        store.ResultSink
	Log         *zap.Logger
	Requirement auth.Requirement

	// Expected pre-assigns seats by durable identity. Tournament only.
	Expected map[string]sim.Side

	// OnStart fires when the countdown completes and the tick loop
	// begins. OnResult fires exactly once when the match is decided.
	OnStart  func()
	OnResult func(Result)
}

type Session struct {
	id          string
	mode        Mode
	log         *zap.Logger
	clock       clockwork.Clock
	tickPeriod  time.Duration
	verifier    auth.Verifier
	sink        store.ResultSink
	requirement auth.Requirement
	expected    map[string]sim.Side
	onStart     func()
	onResult    func(Result)

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan Msg

	clients   map[string]chan protocol.ServerMsg
	nicknames map[string]string // join-time nickname per client
	seats     map[sim.Side]*seat
	state   *sim.State
	phase   Phase

	persistOff bool
	resultSent bool
	hadClients bool

	countdown clockwork.Timer
	countLeft int
	ticker    clockwork.Ticker

	aiDecide clockwork.Ticker
	aiMotor  clockwork.Ticker
	aiSteps  int
}

// saveFailed is posted back to the loop when a background persistence
// attempt fails, so the notice is broadcast from the owning goroutine.
type saveFailed struct{}

func (saveFailed) isSessionMsg() {}

func NewSession(parent context.Context, opts Opts) *Session {
	ctx, cancel := context.WithCancel(parent)

	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = defaultTickPeriod
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Sink == nil {
		opts.Sink = store.NopSink{}
	}
	if opts.Requirement == auth.Unrequired && opts.Mode != ModeAI {
		opts.Requirement = auth.Optional
	}

	s := &Session{
		id:          opts.ID,
		mode:        opts.Mode,
		log:         opts.Log,
		clock:       opts.Clock,
		tickPeriod:  opts.TickPeriod,
		verifier:    opts.Verifier,
		sink:        opts.Sink,
		requirement: opts.Requirement,
		expected:    opts.Expected,
		onStart:     opts.OnStart,
		onResult:    opts.OnResult,
		ctx:         ctx,
		cancel:      cancel,
		inbox:       make(chan Msg, 64),
		clients:     make(map[string]chan protocol.ServerMsg),
		nicknames:   make(map[string]string),
		seats:       make(map[sim.Side]*seat),
		state:       sim.NewState(),
		phase:       PhaseWaitingForOpponent,
	}
	if opts.Mode == ModeAI {
		s.seats[sim.SideRight] = &seat{name: "AI", ready: true, bot: true}
	}

	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

// Inbox is where the transport and owning room send messages.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done closes when the session has terminated and will accept no more
// messages.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case <-s.tickCh():
			s.tick()

		case <-s.countdownCh():
			s.countdownFire()

		case <-s.aiDecideCh():
			s.aiPlanMove()

		case <-s.aiMotorCh():
			s.aiStep()

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)
			case Leave:
				s.removeClient(msg.ClientID)
			case FromClient:
				s.handleClientMsg(msg.ClientID, msg.Msg)
			case saveFailed:
				s.broadcast(protocol.NewEvent(protocol.EvtResultNotSaved))
			case GetState:
				msg.Reply <- s.view()
			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

// Nil channels block forever, so inactive timers simply drop out of the
// select.

func (s *Session) tickCh() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.Chan()
}

func (s *Session) countdownCh() <-chan time.Time {
	if s.countdown == nil {
		return nil
	}
	return s.countdown.Chan()
}

func (s *Session) aiDecideCh() <-chan time.Time {
	if s.aiDecide == nil {
		return nil
	}
	return s.aiDecide.Chan()
}

func (s *Session) aiMotorCh() <-chan time.Time {
	if s.aiMotor == nil {
		return nil
	}
	return s.aiMotor.Chan()
}

func (s *Session) handleJoin(m Join) {
	s.clients[m.ClientID] = m.Outbox
	if m.Nickname != "" {
		s.nicknames[m.ClientID] = m.Nickname
	}
	s.hadClients = true

	switch s.mode {
	case ModeTournament:
		side, ok := s.expected[m.IdentityKey]
		if ok && m.IdentityKey != "" && s.seatFree(side) {
			s.bindSeat(side, m.ClientID, m.IdentityKey, m.Nickname)
		} else {
			s.send(m.ClientID, protocol.NewRole(protocol.RoleSpectator))
		}

	default:
		// Casual: first connection is left, second is right, the rest
		// spectate. The AI permanently holds right in AI mode.
		switch {
		case s.seatFree(sim.SideLeft):
			s.bindSeat(sim.SideLeft, m.ClientID, m.IdentityKey, m.Nickname)
		case s.seatFree(sim.SideRight):
			s.bindSeat(sim.SideRight, m.ClientID, m.IdentityKey, m.Nickname)
		default:
			s.send(m.ClientID, protocol.NewRole(protocol.RoleSpectator))
		}
	}

	if s.phase == PhaseWaitingForOpponent && !s.bothSeated() {
		s.send(m.ClientID, protocol.NewEvent(protocol.EvtWaitingForSecondPlayer))
	}
	s.maybeBeginReadiness()
}

// maybeBeginReadiness advances to the readiness phase once both seats
// are occupied. Seats can fill from a join or from a late auth frame.
func (s *Session) maybeBeginReadiness() {
	if s.phase == PhaseWaitingForOpponent && s.bothSeated() {
		s.phase = PhaseWaitingForReadiness
		s.broadcast(protocol.NewEvent(protocol.EvtWaitingForReadiness))
	}
}

func (s *Session) seatFree(side sim.Side) bool {
	return s.seats[side] == nil
}

func (s *Session) bindSeat(side sim.Side, clientID, key, nickname string) {
	if nickname == "" {
		nickname = string(side)
	}
	s.seats[side] = &seat{clientID: clientID, key: key, name: nickname}
	s.send(clientID, protocol.NewRole(protocol.RoleFor(side)))
	s.broadcast(protocol.NewNickname(s.seatName(sim.SideLeft), s.seatName(sim.SideRight)))
}

func (s *Session) seatName(side sim.Side) string {
	if st := s.seats[side]; st != nil {
		return st.name
	}
	return ""
}

func (s *Session) bothSeated() bool {
	return s.seats[sim.SideLeft] != nil && s.seats[sim.SideRight] != nil
}

func (s *Session) seatOf(clientID string) (sim.Side, *seat) {
	for side, st := range s.seats {
		if st != nil && !st.bot && st.clientID == clientID {
			return side, st
		}
	}
	return "", nil
}

func (s *Session) handleClientMsg(clientID string, msg protocol.ClientMsg) {
	switch m := msg.(type) {
	case protocol.Auth:
		s.handleAuth(clientID, m)
	case protocol.Status:
		s.handleStatus(clientID, m.Status)
	case protocol.Move:
		s.handleMove(clientID, m.Direction)
	}
}

func (s *Session) handleAuth(clientID string, m protocol.Auth) {
	key := m.Token
	if key == "" {
		key = m.SessionID
	}

	// A tournament participant may connect before declaring who they
	// are; seat them once the identity arrives.
	if s.mode == ModeTournament {
		if side, ok := s.expected[key]; ok && key != "" && s.seatFree(side) {
			s.bindSeat(side, clientID, key, s.nicknames[clientID])
			s.maybeBeginReadiness()
		}
	}

	if m.Token == "" || s.verifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 3*time.Second)
	identity, err := s.verifier.Verify(ctx, m.Token)
	cancel()

	if err != nil {
		s.log.Warn("token verification failed",
			zap.String("session", s.id),
			zap.String("client", clientID),
			zap.Error(err))
		if s.requirement == auth.Required {
			s.send(clientID, protocol.NewEvent(protocol.EvtTokenRejected))
			s.removeClient(clientID)
			return
		}
		s.persistOff = true
		s.send(clientID, protocol.NewEvent(protocol.EvtTokenRejected))
		return
	}

	side, st := s.seatOf(clientID)
	if st == nil {
		return
	}
	st.identity = &identity
	st.name = identity.Username
	s.broadcast(protocol.NewNickname(s.seatName(sim.SideLeft), s.seatName(sim.SideRight)))
	s.log.Info("seat authenticated",
		zap.String("session", s.id),
		zap.String("side", string(side)),
		zap.String("username", identity.Username))

	// Both seats verified: from here on persistence must be symmetric,
	// so a later verification failure terminates instead of degrading.
	left, right := s.seats[sim.SideLeft], s.seats[sim.SideRight]
	if left != nil && right != nil && left.identity != nil && right.identity != nil {
		if next, err := s.requirement.Escalate(auth.Required); err == nil {
			s.requirement = next
		}
	}
}

func (s *Session) handleStatus(clientID string, status protocol.StatusKind) {
	switch status {
	case protocol.StatusReady:
		side, st := s.seatOf(clientID)
		if st == nil || s.phase != PhaseWaitingForReadiness || st.ready {
			return
		}
		st.ready = true
		if side == sim.SideLeft {
			s.broadcast(protocol.NewEvent(protocol.EvtLeftPlayerReady))
		} else {
			s.broadcast(protocol.NewEvent(protocol.EvtRightPlayerReady))
		}
		if s.allReady() {
			s.startCountdown()
		}

	case protocol.StatusReset:
		if s.mode == ModeTournament || s.phase != PhaseFinished {
			return
		}
		if _, st := s.seatOf(clientID); st == nil {
			return
		}
		s.send(clientID, protocol.NewEvent(protocol.EvtReset))
		s.rematch()
	}
}

func (s *Session) allReady() bool {
	left, right := s.seats[sim.SideLeft], s.seats[sim.SideRight]
	return left != nil && right != nil && left.ready && right.ready
}

func (s *Session) rematch() {
	s.stopTimers()
	s.state.Reset()
	s.resultSent = false
	s.persistOff = false
	for _, st := range s.seats {
		if st != nil && !st.bot {
			st.ready = false
		}
	}
	s.broadcast(protocol.NewEvent(protocol.EvtRematch))
	if s.bothSeated() {
		s.phase = PhaseWaitingForReadiness
		s.broadcast(protocol.NewEvent(protocol.EvtWaitingForReadiness))
	} else {
		s.phase = PhaseWaitingForOpponent
		s.broadcast(protocol.NewEvent(protocol.EvtWaitingForSecondPlayer))
	}
}

func (s *Session) handleMove(clientID string, dir sim.Direction) {
	if s.phase != PhaseRunning {
		return
	}
	side, st := s.seatOf(clientID)
	if st == nil {
		return
	}
	// A seat can only move its own paddle.
	s.state.MovePaddle(side, dir)
}

func (s *Session) startCountdown() {
	s.phase = PhaseCountdown
	s.countLeft = countdownSteps
	s.broadcast(protocol.NewEvent(protocol.EvtCountToStart))
	s.countdown = s.clock.NewTimer(countdownInterval)
}

func (s *Session) countdownFire() {
	s.countLeft--
	if s.countLeft > 0 {
		s.broadcast(protocol.NewEvent(protocol.EvtCountToStart))
		s.countdown.Reset(countdownInterval)
		return
	}
	s.countdown = nil
	s.phase = PhaseRunning
	s.broadcast(protocol.NewEvent(protocol.EvtGameOn))
	s.ticker = s.clock.NewTicker(s.tickPeriod)
	if s.onStart != nil {
		s.onStart()
	}
	if s.mode == ModeAI {
		s.aiDecide = s.clock.NewTicker(aiDecidePeriod)
		s.aiMotor = s.clock.NewTicker(aiMotorPeriod)
	}
	s.log.Info("match running", zap.String("session", s.id))
}

func (s *Session) tick() {
	s.state.Advance()
	s.broadcast(protocol.NewGameState(s.state.Snapshot()))
	if s.state.GameOver {
		winner, _ := s.state.Winner()
		s.finish(Result{
			LeftScore:  s.state.Score.Left,
			RightScore: s.state.Score.Right,
			Winner:     winner,
		})
	}
}

// removeClient handles both graceful leaves and server-initiated drops.
// A seated client vanishing mid-match is a walkover for the opponent.
func (s *Session) removeClient(clientID string) {
	ch, ok := s.clients[clientID]
	if !ok {
		return
	}
	close(ch)
	delete(s.clients, clientID)
	delete(s.nicknames, clientID)

	side, st := s.seatOf(clientID)
	if st != nil {
		switch s.phase {
		case PhaseCountdown, PhaseRunning:
			s.walkover(side)
			s.seats[side] = nil
		case PhaseFinished:
			// Result already decided; seat just empties.
			s.seats[side] = nil
		default:
			s.seats[side] = nil
			for _, st := range s.seats {
				if st != nil && !st.bot {
					st.ready = false
				}
			}
			s.phase = PhaseWaitingForOpponent
			s.broadcast(protocol.NewEvent(protocol.EvtWaitingForSecondPlayer))
		}
	}

	if s.hadClients && len(s.clients) == 0 {
		s.cancel()
	}
}

// walkover declares the surviving seat the winner with sentinel scores
// and tears the match down through the normal termination path.
func (s *Session) walkover(loser sim.Side) {
	if s.phase == PhaseFinished {
		return
	}
	winner := loser.Opponent()

	if loser == sim.SideLeft {
		s.broadcast(protocol.NewEvent(protocol.EvtLeftError))
	} else {
		s.broadcast(protocol.NewEvent(protocol.EvtRightError))
	}

	result := Result{Winner: winner, Walkover: true}
	if winner == sim.SideLeft {
		result.LeftScore, result.RightScore = sim.WinScore, WalkoverLoserScore
	} else {
		result.LeftScore, result.RightScore = WalkoverLoserScore, sim.WinScore
	}
	s.finish(result)
}

func (s *Session) finish(result Result) {
	if s.resultSent {
		return
	}
	s.resultSent = true
	s.phase = PhaseFinished
	s.stopTimers()

	s.broadcast(protocol.NewEvent(protocol.EvtMatchFinished))
	s.broadcast(protocol.NewWinner(s.winnerName(result.Winner)))

	if !result.Walkover {
		s.persist(result)
	}
	if s.onResult != nil {
		s.onResult(result)
	}
	s.log.Info("match finished",
		zap.String("session", s.id),
		zap.String("winner", string(result.Winner)),
		zap.Bool("walkover", result.Walkover))
}

// persist saves the result when both seats are verified accounts. The
// write happens off the loop; failure is reported to clients but never
// reverses the outcome.
func (s *Session) persist(result Result) {
	left, right := s.seats[sim.SideLeft], s.seats[sim.SideRight]
	if !s.requirement.PersistAllowed() || s.persistOff ||
		left == nil || right == nil || left.identity == nil || right.identity == nil {
		return
	}

	rec := store.MatchResult{
		LeftUserID:    left.identity.UserID,
		LeftUsername:  left.identity.Username,
		RightUserID:   right.identity.UserID,
		RightUsername: right.identity.Username,
		LeftScore:     result.LeftScore,
		RightScore:    result.RightScore,
		Winner:        result.Winner,
		GameType:      string(s.mode),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.sink.SaveResult(ctx, rec); err != nil {
			s.log.Error("result persistence failed",
				zap.String("session", s.id),
				zap.Error(err))
			select {
			case s.inbox <- saveFailed{}:
			default:
			}
		}
	}()
}

func (s *Session) winnerName(side sim.Side) string {
	if st := s.seats[side]; st != nil {
		return st.name
	}
	return string(side)
}

func (s *Session) stopTimers() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
	if s.aiDecide != nil {
		s.aiDecide.Stop()
		s.aiDecide = nil
	}
	if s.aiMotor != nil {
		s.aiMotor.Stop()
		s.aiMotor = nil
	}
}

func (s *Session) shutdown() {
	s.stopTimers()
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
	s.cancel()
}

// send delivers to one client; broadcast fans out to everyone. Both
// drop clients whose outbox is full rather than blocking the loop.
func (s *Session) send(clientID string, msg protocol.ServerMsg) {
	ch, ok := s.clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		s.removeClient(clientID)
	}
}

func (s *Session) broadcast(msg protocol.ServerMsg) {
	var slow []string
	for id, ch := range s.clients {
		select {
		case ch <- msg:
		default:
			slow = append(slow, id)
		}
	}
	for _, id := range slow {
		s.removeClient(id)
	}
}

func (s *Session) view() View {
	v := View{
		Phase:      s.phase,
		NumClients: len(s.clients),
		Score:      s.state.Score,
		Snapshot:   s.state.Snapshot(),
		AISteps:    s.aiSteps,
		Persist:    !s.persistOff,
	}
	if st := s.seats[sim.SideLeft]; st != nil {
		v.LeftSeat = st.clientID
		v.LeftReady = st.ready
	}
	if st := s.seats[sim.SideRight]; st != nil {
		v.RightSeat = st.clientID
		v.RightReady = st.ready
	}
	return v
}
