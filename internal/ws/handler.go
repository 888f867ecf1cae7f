// Package ws serves the realtime endpoint of the dev lobby server.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/DoyleJ11/lol-lobby-client/internal/engine"
	"github.com/DoyleJ11/lol-lobby-client/internal/hub"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/room"
	"github.com/DoyleJ11/lol-lobby-client/internal/store"
	"github.com/DoyleJ11/lol-lobby-client/internal/transport"
)

const outboxSize = 64

// Verifier resolves the user behind a bearer token.
type Verifier interface {
	Verify(token string) (protocol.User, error)
}

// Handler upgrades authenticated requests. The token comes from the token
// query parameter or an Authorization header; a bad token is refused with
// 401 before the upgrade. The token is checked again before every inbound
// frame, and a connection whose token stopped verifying gets an
// UNAUTHORIZED error frame and a policy violation close.
func Handler(h *hub.Hub, v Verifier, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		user, err := v.Verify(token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		wc, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}

		c := &conn{
			hub:    h,
			ws:     wc,
			conn:   transport.Accept(wc),
			verify: func() error { _, err := v.Verify(token); return err },
			client: room.NewClient(uuid.NewString(), user, outboxSize),
			rooms:  make(map[string]*room.Room),
		}
		c.log = log.With(zap.String("client_id", c.client.ID), zap.String("user_id", user.ID))
		c.serve(r.Context())
	}
}

// conn is one accepted connection. The reader runs on the request
// goroutine; the writer drains the client outbox.
type conn struct {
	hub    *hub.Hub
	ws     *websocket.Conn
	conn   transport.Conn
	verify func() error
	client *room.Client
	log    *zap.Logger

	mu      sync.Mutex
	rooms   map[string]*room.Room
	inLobby bool
}

func (c *conn) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	c.log.Info("connected")

	c.client.Send(protocol.MustEnvelope(protocol.EvtConnect, protocol.ConnectAck{
		SocketID: c.client.ID,
		UserID:   c.client.User.ID,
		Username: c.client.User.Username,
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		c.writeLoop(ctx)
	}()

	for {
		env, err := c.conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) && ctx.Err() == nil {
				c.log.Debug("read failed", zap.Error(err))
			}
			break
		}
		if err := c.verify(); err != nil {
			c.revoke(ctx, err)
			break
		}
		if err := c.handle(ctx, env); err != nil {
			c.client.Send(protocol.MustEnvelope(protocol.EvtError, errorPayload(err)))
		}
	}

	cancel()
	wg.Wait()
	c.cleanup()
	_ = c.conn.Close()
	c.log.Info("disconnected")
}

// revoke tells the client its token is no longer accepted and closes the
// connection. The frame is written directly so it precedes the close.
func (c *conn) revoke(ctx context.Context, err error) {
	c.log.Info("token no longer valid", zap.Error(err))
	env := protocol.MustEnvelope(protocol.EvtError, protocol.ErrorPayload{
		Code:    protocol.CodeUnauthorized,
		Message: "token no longer valid",
	})
	if werr := c.conn.Write(ctx, env); werr != nil {
		c.log.Debug("write unauthorized frame", zap.Error(werr))
	}
	_ = c.ws.Close(websocket.StatusPolicyViolation, "unauthorized")
}

func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.client.Done():
			c.log.Warn("outbox full, closing")
			return
		case env := <-c.client.Out():
			c.observe(env)
			if err := c.conn.Write(ctx, env); err != nil {
				return
			}
		}
	}
}

// observe forgets rooms the server removed this connection from.
func (c *conn) observe(env protocol.Envelope) {
	switch env.Event {
	case protocol.EvtUserKicked:
		var p protocol.PlayerLeft
		if env.Decode(&p) == nil && p.UserID == c.client.User.ID {
			c.forget(p.RoomID)
		}
	case protocol.EvtRoomLeft:
		var ref protocol.RoomRef
		if env.Decode(&ref) == nil {
			c.forget(ref.RoomID)
		}
	}
}

func (c *conn) forget(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

func (c *conn) room(id string) (*room.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[id]
	return r, ok
}

// cleanup leaves every channel without acks; the connection is gone.
func (c *conn) cleanup() {
	ctx := context.Background()
	c.mu.Lock()
	rooms := make([]*room.Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	clear(c.rooms)
	inLobby := c.inLobby
	c.mu.Unlock()

	for _, r := range rooms {
		_ = r.Send(ctx, room.Leave{ClientID: c.client.ID})
	}
	if inLobby {
		_ = c.hub.Send(ctx, hub.LeaveLobby{ClientID: c.client.ID})
	}
	c.client.Close()
}

var (
	errBadPayload   = errors.New("malformed payload")
	errUnknownEvent = errors.New("unknown event")
	errNotJoined    = errors.New("not joined to that room")
)

func (c *conn) handle(ctx context.Context, env protocol.Envelope) error {
	switch env.Event {
	case protocol.EvtJoinLobby:
		c.mu.Lock()
		c.inLobby = true
		c.mu.Unlock()
		return c.hub.Send(ctx, hub.JoinLobby{Client: c.client})

	case protocol.EvtLeaveLobby:
		c.mu.Lock()
		c.inLobby = false
		c.mu.Unlock()
		return c.hub.Send(ctx, hub.LeaveLobby{ClientID: c.client.ID, Ack: true})

	case protocol.EvtJoinRoom:
		var ref protocol.RoomRef
		if err := env.Decode(&ref); err != nil || ref.RoomID == "" {
			return errBadPayload
		}
		r, err := c.hub.Room(ctx, ref.RoomID)
		if err != nil {
			return err
		}
		if err := r.Subscribe(ctx, c.client); err != nil {
			return err
		}
		c.mu.Lock()
		c.rooms[ref.RoomID] = r
		c.mu.Unlock()
		return nil

	case protocol.EvtLeaveRoom:
		var ref protocol.RoomRef
		if err := env.Decode(&ref); err != nil {
			return errBadPayload
		}
		r, ok := c.room(ref.RoomID)
		if !ok {
			return errNotJoined
		}
		c.forget(ref.RoomID)
		return r.Send(ctx, room.Leave{ClientID: c.client.ID, Ack: true})

	case protocol.EvtLobbyMessage, protocol.EvtRoomMessage:
		var m protocol.SendMessage
		if err := env.Decode(&m); err != nil {
			return errBadPayload
		}
		if env.Event == protocol.EvtLobbyMessage {
			m.RoomID = ""
		} else if _, ok := c.room(m.RoomID); !ok {
			return errNotJoined
		}
		_, err := c.hub.PostMessage(ctx, protocol.Message{
			ClientMsgID: m.ClientMsgID,
			RoomID:      m.RoomID,
			UserID:      c.client.User.ID,
			Username:    c.client.User.Username,
			Content:     m.Content,
			Type:        m.Type,
			TeamID:      m.TeamID,
		})
		return err

	case protocol.EvtVoiceStarted, protocol.EvtVoiceEnded:
		var ref protocol.RoomRef
		if err := env.Decode(&ref); err != nil {
			return errBadPayload
		}
		typ := engine.CmdVoiceStart
		if env.Event == protocol.EvtVoiceEnded {
			typ = engine.CmdVoiceEnd
		}
		return c.apply(ctx, ref.RoomID, engine.Command{Type: typ})

	case protocol.EvtVoiceMuted:
		var m protocol.VoiceMute
		if err := env.Decode(&m); err != nil {
			return errBadPayload
		}
		return c.apply(ctx, m.RoomID, engine.Command{Type: engine.CmdVoiceMute, Muted: m.IsMuted})

	case protocol.EvtPlayerReady:
		var m protocol.ReadyRequest
		if err := env.Decode(&m); err != nil {
			return errBadPayload
		}
		return c.apply(ctx, m.RoomID, engine.Command{Type: engine.CmdSetReady, Ready: m.Ready})

	default:
		return errUnknownEvent
	}
}

func (c *conn) apply(ctx context.Context, roomID string, cmd engine.Command) error {
	r, ok := c.room(roomID)
	if !ok {
		return errNotJoined
	}
	cmd.ActorID = c.client.User.ID
	return r.Apply(ctx, cmd)
}

func errorPayload(err error) protocol.ErrorPayload {
	code := protocol.CodeInternal
	switch {
	case errors.Is(err, errBadPayload):
		code = protocol.CodeBadPayload
	case errors.Is(err, errUnknownEvent):
		code = protocol.CodeUnknownEvent
	case errors.Is(err, errNotJoined), errors.Is(err, engine.ErrNotInRoom):
		code = protocol.CodeNotInRoom
	case errors.Is(err, hub.ErrRoomNotFound), errors.Is(err, room.ErrClosed):
		code = protocol.CodeRoomNotFound
	case errors.Is(err, engine.ErrNotOwner):
		code = protocol.CodeForbidden
	case errors.Is(err, engine.ErrWrongStatus), errors.Is(err, engine.ErrVoiceOff), errors.Is(err, engine.ErrAlreadyInRoom):
		code = protocol.CodeConflict
	case errors.Is(err, store.ErrEmptyContent):
		code = protocol.CodeEmptyMessage
	}
	return protocol.ErrorPayload{Code: code, Message: err.Error()}
}
