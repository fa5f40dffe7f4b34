// Package protocol models the WebSocket wire protocol as a closed set of
// tagged variants. Unknown tags and malformed payloads are protocol
// errors; the transport closes the offending connection rather than
// silently ignoring them.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pongarena/backend/internal/sim"
)

var (
	ErrBadPayload  = errors.New("malformed payload")
	ErrUnknownType = errors.New("unknown message type")
	ErrBadField    = errors.New("invalid field value")
)

// ClientMsg is one message sent by a client. The set of
// implementations is closed; ParseClient is the only constructor.
type ClientMsg interface{ isClientMsg() }

// Auth is the first message on a match or room socket. Exactly one of
// Token or SessionID identifies the client durably.
type Auth struct {
	Token     string
	SessionID string
}

type StatusKind string

const (
	StatusReady StatusKind = "READY"
	StatusReset StatusKind = "RESET"
)

type Status struct {
	Status StatusKind
}

type Move struct {
	Direction sim.Direction
}

func (Auth) isClientMsg()   {}
func (Status) isClientMsg() {}
func (Move) isClientMsg()   {}

type rawClient struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Status    string `json:"status,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// ParseClient decodes one client frame into its typed variant.
func ParseClient(data []byte) (ClientMsg, error) {
	var raw rawClient
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	switch raw.Type {
	case "auth":
		return Auth{Token: raw.Token, SessionID: raw.SessionID}, nil

	case "status":
		switch StatusKind(raw.Status) {
		case StatusReady, StatusReset:
			return Status{Status: StatusKind(raw.Status)}, nil
		}
		return nil, fmt.Errorf("%w: status %q", ErrBadField, raw.Status)

	case "move":
		switch sim.Direction(raw.Direction) {
		case sim.DirUp, sim.DirDown:
			return Move{Direction: sim.Direction(raw.Direction)}, nil
		}
		return nil, fmt.Errorf("%w: direction %q", ErrBadField, raw.Direction)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, raw.Type)
	}
}
