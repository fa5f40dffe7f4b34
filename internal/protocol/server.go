package protocol

import "github.com/pongarena/backend/internal/sim"

// ServerMsg is one message pushed to a client. Each variant carries its
// own "type" tag so values marshal directly.
type ServerMsg interface{ isServerMsg() }

type Role string

const (
	RoleLeft      Role = "left"
	RoleRight     Role = "right"
	RoleSpectator Role = "spectator"
)

// RoleFor maps a playing side to its wire role.
func RoleFor(side sim.Side) Role {
	if side == sim.SideLeft {
		return RoleLeft
	}
	return RoleRight
}

type RoleMsg struct {
	Type string `json:"type"`
	Role Role   `json:"role"`
}

type GameStateMsg struct {
	Type string       `json:"type"`
	Data sim.Snapshot `json:"data"`
}

type NicknamePair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

type NicknameMsg struct {
	Type   string       `json:"type"`
	Object NicknamePair `json:"object"`
}

// EventMsg is the free-text protocol event channel the UI renders.
type EventMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Well-known event strings.
const (
	EvtWaitingForSecondPlayer = "waiting_for_second_player"
	EvtWaitingForReadiness    = "waiting_for_readiness"
	EvtLeftPlayerReady        = "left_player_ready"
	EvtRightPlayerReady       = "right_player_ready"
	EvtCountToStart           = "count_to_start"
	EvtGameOn                 = "game_on"
	EvtMatchFinished          = "match_finished"
	EvtLeftError              = "left_error"
	EvtRightError             = "right_error"
	EvtRematch                = "rematch"
	EvtReset                  = "reset"
	EvtResultNotSaved         = "result_not_saved"
	EvtTokenRejected          = "token_rejected"
	EvtConnectionReplaced     = "connection_replaced"
	EvtMatchAlreadyStarted    = "match_already_started"
	EvtWinnerPrefix           = "The winner is: "
)

type TournamentUpdateMsg struct {
	Type            string   `json:"type"`
	PlayersIn       int      `json:"playersIn"`
	PlayersExpected int      `json:"playersExpected"`
	Positions       []string `json:"positions"`
	GameOn          bool     `json:"gameOn"`
}

// MatchReadyMsg tells a tournament participant which match socket to
// open and which seat is theirs.
type MatchReadyMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId"`
	Role    Role   `json:"role"`
}

func (RoleMsg) isServerMsg()             {}
func (GameStateMsg) isServerMsg()        {}
func (NicknameMsg) isServerMsg()         {}
func (EventMsg) isServerMsg()            {}
func (TournamentUpdateMsg) isServerMsg() {}
func (MatchReadyMsg) isServerMsg()       {}

func NewRole(role Role) RoleMsg { return RoleMsg{Type: "role", Role: role} }

func NewGameState(snap sim.Snapshot) GameStateMsg {
	return GameStateMsg{Type: "gameState", Data: snap}
}

func NewNickname(left, right string) NicknameMsg {
	return NicknameMsg{Type: "nickname", Object: NicknamePair{Left: left, Right: right}}
}

func NewEvent(message string) EventMsg {
	return EventMsg{Type: "message", Message: message}
}

func NewWinner(name string) EventMsg {
	return EventMsg{Type: "message", Message: EvtWinnerPrefix + name}
}

func NewTournamentUpdate(in, expected int, positions []string, gameOn bool) TournamentUpdateMsg {
	return TournamentUpdateMsg{
		Type:            "tournament_update",
		PlayersIn:       in,
		PlayersExpected: expected,
		Positions:       positions,
		GameOn:          gameOn,
	}
}

func NewMatchReady(matchID string, role Role) MatchReadyMsg {
	return MatchReadyMsg{Type: "match_ready", MatchID: matchID, Role: role}
}
