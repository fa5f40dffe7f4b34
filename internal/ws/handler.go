// Package ws is the WebSocket transport: it accepts connections,
// bridges them onto session/room inboxes, and drains their outbox
// channels back to the wire. All game semantics live behind the
// inboxes; this layer only parses, forwards and closes.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pongarena/backend/internal/hub"
	"github.com/pongarena/backend/internal/match"
	"github.com/pongarena/backend/internal/protocol"
	"github.com/pongarena/backend/internal/tournament"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 32
)

// MatchHandler upgrades a connection and attaches it to a match
// session.
func MatchHandler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}

		reply := make(chan *match.Session, 1)
		h.Inbox() <- hub.GetMatch{ID: id, Reply: reply}
		session := <-reply
		if session == nil {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan protocol.ServerMsg, outboxSize)
		clientID := uuid.NewString()

		session.Inbox() <- match.Join{
			ClientID:    clientID,
			IdentityKey: identityKey(r),
			Nickname:    r.URL.Query().Get("nickname"),
			Outbox:      out,
		}
		defer func() { session.Inbox() <- match.Leave{ClientID: clientID} }()

		go writePump(r.Context(), conn, out)

		readLoop(r.Context(), conn, log, func(msg protocol.ClientMsg) {
			session.Inbox() <- match.FromClient{ClientID: clientID, Msg: msg}
		})
	}
}

// TournamentHandler attaches a connection to a tournament room. The
// first frame must be an auth message carrying the durable identity; a
// known identity without an explicit room id resumes via the router.
func TournamentHandler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		key, ok := readIdentity(r.Context(), conn)
		if !ok {
			conn.Close(websocket.StatusPolicyViolation, "auth required")
			return
		}

		roomID := r.URL.Query().Get("id")
		if roomID == "" {
			roomID, _ = h.Router().Lookup(key)
		}

		reply := make(chan *tournament.Room, 1)
		h.Inbox() <- hub.GetRoom{ID: roomID, Reply: reply}
		room := <-reply
		if room == nil {
			// A binding pointing at a destroyed room is stale; drop it
			// so the next connect doesn't repeat the dead lookup.
			if roomID != "" {
				h.Router().Release(key, roomID)
			}
			conn.Close(websocket.StatusPolicyViolation, "room not found")
			return
		}
		h.Router().Bind(key, roomID)

		out := make(chan protocol.ServerMsg, outboxSize)
		room.Inbox() <- tournament.Join{
			Key:      key,
			Nickname: r.URL.Query().Get("nickname"),
			Outbox:   out,
		}
		defer func() { room.Inbox() <- tournament.Leave{Key: key, Outbox: out} }()

		go writePump(r.Context(), conn, out)

		// Rooms push roster state; clients only keep the socket open.
		// Frames still have to parse, so garbage closes the connection.
		readLoop(r.Context(), conn, log, func(protocol.ClientMsg) {})
	}
}

// readIdentity consumes the mandatory first auth frame and returns the
// durable identity key it declares.
func readIdentity(ctx context.Context, conn *websocket.Conn) (string, bool) {
	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, data, err := conn.Read(readCtx)
	if err != nil {
		return "", false
	}
	msg, err := protocol.ParseClient(data)
	if err != nil {
		return "", false
	}
	authMsg, ok := msg.(protocol.Auth)
	if !ok {
		return "", false
	}
	if authMsg.Token != "" {
		return authMsg.Token, true
	}
	if authMsg.SessionID != "" {
		return authMsg.SessionID, true
	}
	return "", false
}

// writePump drains an outbox to the wire until the owning actor closes
// it, then closes the connection so the read loop unwinds.
func writePump(ctx context.Context, conn *websocket.Conn, out <-chan protocol.ServerMsg) {
	for msg := range out {
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = conn.Write(writeCtx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "session closed")
}

// readLoop parses frames and hands them to deliver. A malformed frame
// is a protocol error: the connection closes, no retry.
func readLoop(ctx context.Context, conn *websocket.Conn, log *zap.Logger, deliver func(protocol.ClientMsg)) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					log.Debug("connection read ended", zap.Error(err))
				}
			}
			return
		}

		msg, err := protocol.ParseClient(data)
		if err != nil {
			log.Warn("protocol error", zap.Error(err))
			conn.Close(websocket.StatusPolicyViolation, "protocol error")
			return
		}
		deliver(msg)
	}
}

func identityKey(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return r.URL.Query().Get("sessionId")
}
