package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pongarena/backend/internal/sim"
)

func TestParseClient_Variants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ClientMsg
	}{
		{"auth token", `{"type":"auth","token":"abc"}`, Auth{Token: "abc"}},
		{"auth session", `{"type":"auth","sessionId":"s-1"}`, Auth{SessionID: "s-1"}},
		{"ready", `{"type":"status","status":"READY"}`, Status{Status: StatusReady}},
		{"reset", `{"type":"status","status":"RESET"}`, Status{Status: StatusReset}},
		{"move up", `{"type":"move","direction":"UP"}`, Move{Direction: sim.DirUp}},
		{"move down", `{"type":"move","direction":"DOWN"}`, Move{Direction: sim.DirDown}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClient([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseClient_RejectsUnknownTag(t *testing.T) {
	_, err := ParseClient([]byte(`{"type":"teleport"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestParseClient_RejectsMalformedPayload(t *testing.T) {
	_, err := ParseClient([]byte(`{"type":`))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestParseClient_RejectsBadFieldValues(t *testing.T) {
	_, err := ParseClient([]byte(`{"type":"move","direction":"LEFT"}`))
	assert.ErrorIs(t, err, ErrBadField)

	_, err = ParseClient([]byte(`{"type":"status","status":"PAUSE"}`))
	assert.ErrorIs(t, err, ErrBadField)
}

func TestServerMessages_WireShapes(t *testing.T) {
	role, err := json.Marshal(NewRole(RoleSpectator))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"role","role":"spectator"}`, string(role))

	nick, err := json.Marshal(NewNickname("alice", "bob"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"nickname","object":{"left":"alice","right":"bob"}}`, string(nick))

	evt, err := json.Marshal(NewEvent(EvtGameOn))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","message":"game_on"}`, string(evt))

	winner, err := json.Marshal(NewWinner("alice"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","message":"The winner is: alice"}`, string(winner))

	update, err := json.Marshal(NewTournamentUpdate(3, 4, []string{"a", "b", "c"}, false))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"tournament_update","playersIn":3,"playersExpected":4,"positions":["a","b","c"],"gameOn":false}`,
		string(update))
}

func TestGameStateMsg_NormalizedPayload(t *testing.T) {
	state := sim.NewState()
	data, err := json.Marshal(NewGameState(state.Snapshot()))
	require.NoError(t, err)

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			Ball struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"ball"`
			Paddles struct {
				Left  float64 `json:"left"`
				Right float64 `json:"right"`
			} `json:"paddles"`
			Score struct {
				Left  int `json:"left"`
				Right int `json:"right"`
			} `json:"score"`
			GameOver bool `json:"gameOver"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "gameState", decoded.Type)
	assert.InDelta(t, 0.5, decoded.Data.Ball.X, 1e-9)
	assert.InDelta(t, 0.5, decoded.Data.Ball.Y, 1e-9)
	assert.False(t, decoded.Data.GameOver)
}
