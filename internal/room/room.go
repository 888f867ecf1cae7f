// Package room runs one actor per room on the dev lobby server. The actor
// owns the room state, applies commands through the engine and broadcasts
// the resulting events to every subscribed client.
package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/engine"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

type Msg interface{ isRoomMsg() }

// Join subscribes Client to the room and adds its user to the roster.
type Join struct {
	Client *Client
	Reply  chan error
}

func (Join) isRoomMsg() {}

// Leave unsubscribes a client. Ack sends roomLeft to it; a dropped
// connection leaves without one.
type Leave struct {
	ClientID string
	Ack      bool
}

func (Leave) isRoomMsg() {}

// FromClient applies Cmd. Reply may be nil.
type FromClient struct {
	Cmd   engine.Command
	Reply chan error
}

func (FromClient) isRoomMsg() {}

// Chat broadcasts a stored message. Team messages reach that team only.
type Chat struct {
	Msg protocol.Message
}

func (Chat) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Seq        int64
	NumClients int
	State      engine.State
}

type Room struct {
	id      string
	inbox   chan Msg
	state   engine.State
	seq     int64
	clients map[string]*Client
	log     *zap.Logger
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRoom(parent context.Context, initial engine.State, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	r := &Room{
		id:      initial.Room.ID,
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]*Client),
		log:     log.Named("room").With(zap.String("room_id", initial.Room.ID)),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Inbox is how the hub, the websocket layer and the REST handlers talk to
// the room.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Send delivers m unless the room has shut down.
func (r *Room) Send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

var ErrClosed = errors.New("room closed")

// Subscribe joins c and waits for the room to accept it.
func (r *Room) Subscribe(ctx context.Context, c *Client) error {
	reply := make(chan error, 1)
	if err := r.Send(ctx, Join{Client: c, Reply: reply}); err != nil {
		return err
	}
	return r.await(ctx, reply)
}

// Apply runs cmd and waits for the outcome.
func (r *Room) Apply(ctx context.Context, cmd engine.Command) error {
	reply := make(chan error, 1)
	if err := r.Send(ctx, FromClient{Cmd: cmd, Reply: reply}); err != nil {
		return err
	}
	return r.await(ctx, reply)
}

// View returns a copy of the current state.
func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.ctx.Done():
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (r *Room) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-r.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				reply(msg.Reply, r.join(msg.Client))

			case Leave:
				c, ok := r.clients[msg.ClientID]
				if !ok {
					break
				}
				if msg.Ack {
					c.Send(protocol.MustEnvelope(protocol.EvtRoomLeft, protocol.RoomRef{RoomID: r.id}))
				}
				r.drop(c)

			case FromClient:
				reply(msg.Reply, r.apply(msg.Cmd))

			case Chat:
				r.chat(msg.Msg)

			case GetState:
				msg.Reply <- View{
					Seq:        r.seq,
					NumClients: len(r.clients),
					State:      r.state.Clone(),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func reply(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

func (r *Room) join(c *Client) error {
	member := r.userClients(c.User.ID) > 0 || inRoster(r.state.Room, c.User.ID)
	var events []engine.Event
	if !member {
		var (
			next engine.State
			err  error
		)
		events, next, err = engine.Apply(r.state, engine.Command{
			Type:     engine.CmdJoin,
			ActorID:  c.User.ID,
			Username: c.User.Username,
			At:       r.now(),
		})
		if err != nil {
			return err
		}
		r.state = next
	}

	r.clients[c.ID] = c
	c.Send(protocol.MustEnvelope(protocol.EvtRoomJoined, protocol.RoomRef{RoomID: r.id}))
	r.log.Debug("client joined", zap.String("client_id", c.ID), zap.String("user_id", c.User.ID))
	r.broadcast(events)
	return nil
}

// drop removes a client. The user leaves the roster once no connection of
// theirs remains.
func (r *Room) drop(c *Client) {
	delete(r.clients, c.ID)
	if r.userClients(c.User.ID) > 0 {
		return
	}
	if err := r.apply(engine.Command{Type: engine.CmdLeave, ActorID: c.User.ID}); err != nil && !errors.Is(err, engine.ErrNotInRoom) {
		r.log.Warn("leave failed", zap.String("user_id", c.User.ID), zap.Error(err))
	}
}

func (r *Room) apply(cmd engine.Command) error {
	if cmd.At.IsZero() {
		cmd.At = r.now()
	}
	events, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		return err
	}
	r.state = next
	r.broadcast(events)

	for _, e := range events {
		if e.Type != engine.EvtUserKicked {
			continue
		}
		for id, c := range r.clients {
			if c.User.ID == e.UserID {
				delete(r.clients, id)
			}
		}
	}
	return nil
}

func (r *Room) chat(m protocol.Message) {
	env := protocol.MustEnvelope(protocol.EvtRoomMessage, m)
	for _, c := range r.clients {
		if m.TeamID > 0 {
			p, ok := r.state.Room.Player(c.User.ID)
			if !ok || p.TeamID != m.TeamID {
				continue
			}
		}
		r.send(c, env)
	}
}

func (r *Room) broadcast(events []engine.Event) {
	for _, e := range events {
		if e.Roster() {
			r.seq++
		}
		env := r.envelope(e)
		for _, c := range r.clients {
			r.send(c, env)
		}
	}
}

// send drops clients whose outbox is full. Their user leaves the roster
// the same way a closed connection does.
func (r *Room) send(c *Client, env protocol.Envelope) {
	if c.Send(env) {
		return
	}
	if _, ok := r.clients[c.ID]; !ok {
		return
	}
	r.log.Warn("slow client dropped", zap.String("client_id", c.ID))
	delete(r.clients, c.ID)
	if r.userClients(c.User.ID) == 0 {
		// queued behind the current message so broadcasts never nest
		go func() { _ = r.Send(r.ctx, FromClient{Cmd: engine.Command{Type: engine.CmdLeave, ActorID: c.User.ID}}) }()
	}
}

func (r *Room) userClients(uid string) int {
	n := 0
	for _, c := range r.clients {
		if c.User.ID == uid {
			n++
		}
	}
	return n
}

func inRoster(s protocol.RoomSnapshot, uid string) bool {
	if _, ok := s.Player(uid); ok {
		return true
	}
	for _, p := range s.Spectators {
		if p.UserID == uid {
			return true
		}
	}
	return false
}

func (r *Room) shutdown() {
	for id, c := range r.clients {
		c.Send(protocol.MustEnvelope(protocol.EvtRoomLeft, protocol.RoomRef{RoomID: r.id}))
		delete(r.clients, id)
	}
	r.cancel()
}
