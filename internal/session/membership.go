package session

import (
	"fmt"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

type MemberStatus int

const (
	Pending MemberStatus = iota + 1
	Joined
	LeavePending
)

func (s MemberStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Joined:
		return "joined"
	case LeavePending:
		return "leave_pending"
	default:
		return fmt.Sprintf("MemberStatus(%d)", int(s))
	}
}

// Membership is one channel the client intends to be subscribed to. RoomID
// is empty for the lobby. Epoch is the connection epoch the request was
// issued under.
type Membership struct {
	RoomID string
	Status MemberStatus
	Epoch  uint64
}

func (m Membership) IsLobby() bool { return m.RoomID == "" }

// Tracker holds the lobby membership and at most one room membership. It
// never talks to the transport; each request returns the frames the caller
// must send.
type Tracker struct {
	lobby *Membership
	room  *Membership
}

func NewTracker() *Tracker { return &Tracker{} }

func (t *Tracker) JoinLobby(connected bool, epoch uint64) ([]protocol.Envelope, error) {
	if !connected {
		return nil, &CommandError{Kind: NotConnected, Channel: protocol.ChannelLobby}
	}
	if t.lobby != nil && t.lobby.Status != LeavePending {
		return nil, &CommandError{Kind: AlreadyInChannel, Channel: protocol.ChannelLobby}
	}
	t.lobby = &Membership{Status: Pending, Epoch: epoch}
	return []protocol.Envelope{protocol.MustEnvelope(protocol.EvtJoinLobby, nil)}, nil
}

func (t *Tracker) LeaveLobby(connected bool, epoch uint64) ([]protocol.Envelope, error) {
	if !connected {
		return nil, &CommandError{Kind: NotConnected, Channel: protocol.ChannelLobby}
	}
	if t.lobby == nil || t.lobby.Status == LeavePending {
		return nil, &CommandError{Kind: NotInChannel, Channel: protocol.ChannelLobby}
	}
	t.lobby = &Membership{Status: LeavePending, Epoch: epoch}
	return []protocol.Envelope{protocol.MustEnvelope(protocol.EvtLeaveLobby, nil)}, nil
}

// JoinRoom requests roomID. A different current room is left first and its
// id returned as prev.
func (t *Tracker) JoinRoom(connected bool, epoch uint64, roomID string) (frames []protocol.Envelope, prev string, err error) {
	if !connected {
		return nil, "", &CommandError{Kind: NotConnected, Channel: protocol.ChannelPublic}
	}
	if t.room != nil && t.room.RoomID == roomID && t.room.Status != LeavePending {
		return nil, "", &CommandError{Kind: AlreadyInChannel, Channel: protocol.ChannelPublic}
	}
	if t.room != nil && t.room.RoomID != roomID {
		prev = t.room.RoomID
		if t.room.Status != LeavePending {
			frames = append(frames, protocol.MustEnvelope(protocol.EvtLeaveRoom, protocol.RoomRef{RoomID: prev}))
		}
	}
	t.room = &Membership{RoomID: roomID, Status: Pending, Epoch: epoch}
	frames = append(frames, protocol.MustEnvelope(protocol.EvtJoinRoom, protocol.RoomRef{RoomID: roomID}))
	return frames, prev, nil
}

func (t *Tracker) LeaveRoom(connected bool, epoch uint64) (frames []protocol.Envelope, roomID string, err error) {
	if !connected {
		return nil, "", &CommandError{Kind: NotConnected, Channel: protocol.ChannelPublic}
	}
	if t.room == nil || t.room.Status == LeavePending {
		return nil, "", &CommandError{Kind: NotInChannel, Channel: protocol.ChannelPublic}
	}
	roomID = t.room.RoomID
	t.room = &Membership{RoomID: roomID, Status: LeavePending, Epoch: epoch}
	return []protocol.Envelope{protocol.MustEnvelope(protocol.EvtLeaveRoom, protocol.RoomRef{RoomID: roomID})}, roomID, nil
}

// Ack applies a server acknowledgement and reports whether it matched a
// request made under epoch.
func (t *Tracker) Ack(event, roomID string, epoch uint64) bool {
	switch event {
	case protocol.EvtLobbyJoined:
		if t.lobby == nil || t.lobby.Epoch != epoch || t.lobby.Status != Pending {
			return false
		}
		t.lobby.Status = Joined
	case protocol.EvtLobbyLeft:
		if t.lobby == nil || t.lobby.Epoch != epoch || t.lobby.Status != LeavePending {
			return false
		}
		t.lobby = nil
	case protocol.EvtRoomJoined:
		if t.room == nil || t.room.Epoch != epoch || t.room.Status != Pending {
			return false
		}
		if roomID != "" && roomID != t.room.RoomID {
			return false
		}
		t.room.Status = Joined
	case protocol.EvtRoomLeft:
		if t.room == nil || t.room.Epoch != epoch || t.room.Status != LeavePending {
			return false
		}
		if roomID != "" && roomID != t.room.RoomID {
			return false
		}
		t.room = nil
	default:
		return false
	}
	return true
}

// Kicked drops the room membership when roomID is the current room or empty.
func (t *Tracker) Kicked(roomID string) bool {
	if t.room == nil || (roomID != "" && roomID != t.room.RoomID) {
		return false
	}
	t.room = nil
	return true
}

// Clear forgets every membership without producing leave frames.
func (t *Tracker) Clear() {
	t.lobby = nil
	t.room = nil
}

func (t *Tracker) Lobby() (Membership, bool) {
	if t.lobby == nil {
		return Membership{}, false
	}
	return *t.lobby, true
}

// InLobby reports whether lobby traffic should still be accepted: the lobby
// is joined or being joined, not being left.
func (t *Tracker) InLobby() bool {
	return t.lobby != nil && t.lobby.Status != LeavePending
}

// InRoom is InLobby for roomID.
func (t *Tracker) InRoom(roomID string) bool {
	return t.room != nil && t.room.RoomID == roomID && t.room.Status != LeavePending
}

func (t *Tracker) Room() (Membership, bool) {
	if t.room == nil {
		return Membership{}, false
	}
	return *t.room, true
}

// Joined reports whether messages may be sent on ch.
func (t *Tracker) Joined(ch protocol.Channel) bool {
	switch {
	case ch == protocol.ChannelLobby:
		return t.lobby != nil && t.lobby.Status == Joined
	case ch.InRoom():
		return t.room != nil && t.room.Status == Joined
	default:
		return false
	}
}

func (t *Tracker) Snapshot() []Membership {
	var out []Membership
	if t.lobby != nil {
		out = append(out, *t.lobby)
	}
	if t.room != nil {
		out = append(out, *t.room)
	}
	return out
}
