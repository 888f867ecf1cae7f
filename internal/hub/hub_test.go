package hub

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/lol-lobby-client/internal/engine"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/room"
	"github.com/DoyleJ11/lol-lobby-client/internal/store"
)

func recvEvent(t *testing.T, c *room.Client, event string) protocol.Envelope {
	t.Helper()
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case env := <-c.Out():
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, nil, nil)
	reply := make(chan *room.Room, 1)

	state := engine.NewRoomState("ZED123", "scrims", "u1", engine.DefaultSettings())
	h.Inbox() <- CreateRoom{ID: "ZED123", State: state, Reply: reply}
	r1 := <-reply

	r2, err := h.Room(ctx, "ZED123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	if r1 == nil || r2 == nil || r1 != r2 {
		t.Fatalf("expected same room pointer")
	}

	if _, err := h.Room(ctx, "NOPE00"); err != ErrRoomNotFound {
		t.Fatalf("want ErrRoomNotFound, got %v", err)
	}
}

func TestHub_LobbyAcksAndChat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, store.NewMemory(), nil)

	a := room.NewClient("c1", protocol.User{ID: "a"}, 8)
	b := room.NewClient("c2", protocol.User{ID: "b"}, 8)
	h.Inbox() <- JoinLobby{Client: a}
	h.Inbox() <- JoinLobby{Client: b}
	recvEvent(t, a, protocol.EvtLobbyJoined)
	recvEvent(t, b, protocol.EvtLobbyJoined)

	in := protocol.Message{UserID: "a", ClientMsgID: "c-1", Content: "anyone up for inhouses?"}
	saved, err := h.PostMessage(ctx, in)
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	var got protocol.Message
	if err := recvEvent(t, b, protocol.EvtLobbyMessage).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != saved.ID || got.ClientMsgID != "c-1" {
		t.Fatalf("broadcast %+v, saved %+v", got, saved)
	}

	// the REST copy of the same send is not broadcast again
	again, err := h.PostMessage(ctx, in)
	if err != nil || again.ID != saved.ID {
		t.Fatalf("repeat post: %+v %v", again, err)
	}
	select {
	case env := <-b.Out():
		t.Fatalf("unexpected frame %s", env.Event)
	case <-time.After(50 * time.Millisecond):
	}

	h.Inbox() <- LeaveLobby{ClientID: "c2", Ack: true}
	recvEvent(t, b, protocol.EvtLobbyLeft)
}

func TestHub_RoomMessageNeedsRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil, nil)

	_, err := h.PostMessage(ctx, protocol.Message{RoomID: "GONE00", UserID: "a", Content: "hi"})
	if err == nil {
		t.Fatalf("expected an error for a missing room")
	}
}
