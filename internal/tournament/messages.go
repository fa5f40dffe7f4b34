package tournament

import (
	"github.com/pongarena/backend/internal/match"
	"github.com/pongarena/backend/internal/protocol"
)

// Msg is the sealed set of messages a Room accepts on its inbox.
type Msg interface{ isRoomMsg() }

// Join adds a new participant, or swaps a known identity's connection
// (reconnection) when the tournament has not started yet.
type Join struct {
	Key      string
	Nickname string
	Outbox   chan protocol.ServerMsg
}

// Leave reports a dropped connection. Outbox identifies which socket
// dropped, so tearing down a replaced connection can't mark the
// participant's newer connection offline.
type Leave struct {
	Key    string
	Outbox chan protocol.ServerMsg
}

type Shutdown struct{}

// GetState is a test-only probe.
type GetState struct{ Reply chan View }

// matchStarted and matchResult are posted by the embedded sessions.
type matchStarted struct{ MatchID string }

type matchResult struct {
	MatchID string
	Result  match.Result
}

func (Join) isRoomMsg()         {}
func (Leave) isRoomMsg()        {}
func (Shutdown) isRoomMsg()     {}
func (GetState) isRoomMsg()     {}
func (matchStarted) isRoomMsg() {}
func (matchResult) isRoomMsg()  {}

type ParticipantView struct {
	Key          string
	Nickname     string
	SeedIndex    int
	StillInRound bool
	Online       bool
}

type MatchView struct {
	ID         string
	Round      int
	LeftKey    string
	RightKey   string
	Decided    bool
	Started    bool
	LeftScore  int
	RightScore int
}

type View struct {
	Locked       bool
	Done         bool
	CurrentRound int
	PlayersIn    int
	ExpectedSize int
	ChampionKey  string
	Participants []ParticipantView
	Matches      []MatchView
}

func (r *Room) view() View {
	v := View{
		Locked:       r.locked,
		Done:         r.done,
		CurrentRound: r.currentRound,
		PlayersIn:    len(r.participants),
		ExpectedSize: r.expectedSize,
	}
	if r.champion != nil {
		v.ChampionKey = r.champion.Key
	}
	for _, p := range r.bySeed() {
		v.Participants = append(v.Participants, ParticipantView{
			Key:          p.Key,
			Nickname:     p.Nickname,
			SeedIndex:    p.SeedIndex,
			StillInRound: p.StillInRound,
			Online:       p.Online,
		})
	}
	for _, bm := range r.matches {
		v.Matches = append(v.Matches, MatchView{
			ID:         bm.ID,
			Round:      bm.Round,
			LeftKey:    bm.Left.Key,
			RightKey:   bm.Right.Key,
			Decided:    bm.Decided,
			Started:    bm.Started,
			LeftScore:  bm.LeftScore,
			RightScore: bm.RightScore,
		})
	}
	return v
}
