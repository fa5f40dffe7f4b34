package match

import (
	"github.com/pongarena/backend/internal/protocol"
	"github.com/pongarena/backend/internal/sim"
)

// Msg is the sealed set of messages a Session accepts on its inbox.
type Msg interface{ isSessionMsg() }

// Join registers a connection. IdentityKey is the durable identity the
// transport resolved for this connection ("" for anonymous casual play);
// tournament sessions use it to seat pre-assigned participants.
type Join struct {
	ClientID    string
	IdentityKey string
	Nickname    string
	Outbox      chan protocol.ServerMsg
}

type Leave struct{ ClientID string }

// FromClient carries one parsed protocol message from a connection.
type FromClient struct {
	ClientID string
	Msg      protocol.ClientMsg
}

type Shutdown struct{}

// GetState is a test-only probe that reflects internal state without
// data races.
type GetState struct{ Reply chan View }

func (Join) isSessionMsg()       {}
func (Leave) isSessionMsg()      {}
func (FromClient) isSessionMsg() {}
func (Shutdown) isSessionMsg()   {}
func (GetState) isSessionMsg()   {}

type View struct {
	Phase      Phase
	NumClients int
	LeftSeat   string
	RightSeat  string
	LeftReady  bool
	RightReady bool
	Persist    bool
	Score      sim.Score
	Snapshot   sim.Snapshot
	AISteps    int
}
