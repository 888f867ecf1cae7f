// Package hub is the dev lobby server's registry of rooms and of the
// clients subscribed to the global lobby channel.
package hub

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/engine"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/room"
	"github.com/DoyleJ11/lol-lobby-client/internal/store"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrClosed       = errors.New("hub closed")
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	ID    string
	State engine.State
	Reply chan *room.Room
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

type ListRooms struct {
	Reply chan []*room.Room
}

type RemoveRoom struct {
	ID string
}

// JoinLobby subscribes Client to the lobby channel and acks with
// lobbyJoined.
type JoinLobby struct {
	Client *room.Client
}

// LeaveLobby unsubscribes a client. Ack sends lobbyLeft.
type LeaveLobby struct {
	ClientID string
	Ack      bool
}

type LobbyChat struct {
	Msg protocol.Message
}

type lobbyCount struct {
	Reply chan int
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	lobby  map[string]*room.Client
	store  store.Store
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (ListRooms) isHubMsg()   {}
func (RemoveRoom) isHubMsg()  {}
func (JoinLobby) isHubMsg()   {}
func (LeaveLobby) isHubMsg()  {}
func (LobbyChat) isHubMsg()   {}
func (lobbyCount) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

func NewHub(parent context.Context, st store.Store, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if st == nil {
		st = store.NewMemory()
	}
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		lobby:  make(map[string]*room.Client),
		store:  st,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Store() store.Store { return h.store }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if r := h.rooms[msg.ID]; r != nil {
					msg.Reply <- r
					break
				}
				r := room.NewRoom(h.ctx, msg.State, h.log)
				h.rooms[msg.ID] = r
				msg.Reply <- r

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // May be nil

			case ListRooms:
				out := make([]*room.Room, 0, len(h.rooms))
				for _, r := range h.rooms {
					out = append(out, r)
				}
				msg.Reply <- out

			case RemoveRoom:
				if r := h.rooms[msg.ID]; r != nil {
					r.Inbox() <- room.Shutdown{}
					delete(h.rooms, msg.ID)
				}

			case JoinLobby:
				h.lobby[msg.Client.ID] = msg.Client
				msg.Client.Send(protocol.MustEnvelope(protocol.EvtLobbyJoined, nil))

			case LeaveLobby:
				c, ok := h.lobby[msg.ClientID]
				if !ok {
					break
				}
				delete(h.lobby, msg.ClientID)
				if msg.Ack {
					c.Send(protocol.MustEnvelope(protocol.EvtLobbyLeft, nil))
				}

			case LobbyChat:
				env := protocol.MustEnvelope(protocol.EvtLobbyMessage, msg.Msg)
				for id, c := range h.lobby {
					if !c.Send(env) {
						delete(h.lobby, id)
					}
				}

			case lobbyCount:
				msg.Reply <- len(h.lobby)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, r := range h.rooms {
		select {
		case r.Inbox() <- room.Shutdown{}:
		default:
		}
	}
	clear(h.rooms)
	clear(h.lobby)
	h.cancel()
}

// Send delivers m unless the hub has shut down.
func (h *Hub) Send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Room looks up a room by id.
func (h *Hub) Room(ctx context.Context, id string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.Send(ctx, GetRoom{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		if r == nil {
			return nil, ErrRoomNotFound
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PostMessage stores m and broadcasts it to the lobby or its room. A repeat
// of an already stored send returns the stored copy without a broadcast.
func (h *Hub) PostMessage(ctx context.Context, m protocol.Message) (protocol.Message, error) {
	saved, created, err := h.store.Save(ctx, m)
	if err != nil {
		return protocol.Message{}, err
	}
	if !created {
		return saved, nil
	}
	if saved.RoomID == "" {
		return saved, h.Send(ctx, LobbyChat{Msg: saved})
	}
	r, err := h.Room(ctx, saved.RoomID)
	if err != nil {
		return saved, fmt.Errorf("broadcast message: %w", err)
	}
	return saved, r.Send(ctx, room.Chat{Msg: saved})
}

// Rooms returns every open room.
func (h *Hub) Rooms(ctx context.Context) ([]*room.Room, error) {
	reply := make(chan []*room.Room, 1)
	if err := h.Send(ctx, ListRooms{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case rs := <-reply:
		return rs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LobbySize is the number of connections subscribed to the lobby channel.
func (h *Hub) LobbySize(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.Send(ctx, lobbyCount{Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
