package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/reconcile"
)

const messageTypeText = "text"

func (s *Session) connected() bool { return s.state == Connected && s.conn != nil }

func (s *Session) handleLobby(leave bool) error {
	if leave {
		frames, err := s.tracker.LeaveLobby(s.connected(), s.epoch)
		if err != nil {
			return err
		}
		s.wantLobby = false
		s.chat.ClearLobby()
		return s.writeAll(frames)
	}
	frames, err := s.tracker.JoinLobby(s.connected(), s.epoch)
	if err != nil {
		return err
	}
	s.wantLobby = true
	return s.writeAll(frames)
}

func (s *Session) handleRoom(roomID string, leave bool) error {
	if leave {
		frames, _, err := s.tracker.LeaveRoom(s.connected(), s.epoch)
		if err != nil {
			return err
		}
		s.clearRoom()
		s.wantRoom = ""
		return s.writeAll(frames)
	}

	if roomID == "" {
		return errors.New("enter room: empty room id")
	}
	frames, _, err := s.tracker.JoinRoom(s.connected(), s.epoch, roomID)
	if err != nil {
		return err
	}
	if s.room != nil && s.room.ID() != roomID {
		s.clearRoom()
	}
	if s.room == nil {
		s.room = reconcile.NewRoom(roomID)
	}
	s.presence = reconcile.NewPresence(roomID)
	s.wantRoom = roomID
	return s.writeAll(frames)
}

func (s *Session) handleSend(ch protocol.Channel, content string) (protocol.Message, error) {
	if !ch.Valid() {
		return protocol.Message{}, &CommandError{Kind: NotInChannel, Channel: ch}
	}
	if !s.connected() {
		return protocol.Message{}, &CommandError{Kind: NotConnected, Channel: ch}
	}
	if !s.tracker.Joined(ch) {
		return protocol.Message{}, &CommandError{Kind: NotInChannel, Channel: ch}
	}

	out := protocol.SendMessage{
		Content:     content,
		Type:        messageTypeText,
		ClientMsgID: uuid.NewString(),
	}
	event := protocol.EvtLobbyMessage
	if ch.InRoom() {
		event = protocol.EvtRoomMessage
		m, _ := s.tracker.Room()
		out.RoomID = m.RoomID
		out.TeamID, _ = ch.TeamID()
	}
	local := protocol.Message{
		ClientMsgID: out.ClientMsgID,
		RoomID:      out.RoomID,
		UserID:      s.selfID,
		Username:    s.selfName,
		Content:     content,
		Type:        out.Type,
		TeamID:      out.TeamID,
		Time:        s.opts.Now(),
	}

	env, err := protocol.NewEnvelope(event, out)
	if err != nil {
		return protocol.Message{}, err
	}
	if err := s.chat.AppendLocal(ch, local); err != nil {
		return protocol.Message{}, err
	}
	if err := s.write(env); err != nil {
		s.chat.Remove(ch, out.ClientMsgID)
		return protocol.Message{}, err
	}
	s.persist(ch, out)

	local.Pending = true
	return local, nil
}

// persist stores a sent message through the API. The response is merged
// like an echo.
func (s *Session) persist(ch protocol.Channel, out protocol.SendMessage) {
	if s.opts.API == nil {
		return
	}
	s.request(func(ctx context.Context) sessionMsg {
		var (
			m   protocol.Message
			err error
		)
		if ch == protocol.ChannelLobby {
			m, err = s.opts.API.PostLobbyMessage(ctx, out)
		} else {
			m, err = s.opts.API.PostRoomMessage(ctx, out.RoomID, out)
		}
		return persisted{ch: ch, clientMsgID: out.ClientMsgID, msg: m, err: err}
	})
}

func (s *Session) roomReady() error {
	if !s.connected() {
		return &CommandError{Kind: NotConnected, Channel: protocol.ChannelPublic}
	}
	if !s.tracker.Joined(protocol.ChannelPublic) || s.room == nil || s.presence == nil {
		return &CommandError{Kind: NotInChannel, Channel: protocol.ChannelPublic}
	}
	return nil
}

func (s *Session) handleReady(ready bool) error {
	if err := s.roomReady(); err != nil {
		return err
	}
	env := protocol.MustEnvelope(protocol.EvtPlayerReady, protocol.ReadyRequest{RoomID: s.room.ID(), Ready: ready})
	s.presence.SetPendingReady(s.selfID, ready)
	if err := s.write(env); err != nil {
		s.presence.DiscardPending(s.selfID)
		return err
	}
	return nil
}

func (s *Session) handleVoice(enabled, muted bool) error {
	if err := s.roomReady(); err != nil {
		return err
	}
	muted = enabled && muted
	roomID := s.room.ID()
	cur := s.presence.View()[s.selfID]

	var frames []protocol.Envelope
	if enabled != cur.VoiceEnabled {
		event := protocol.EvtVoiceEnded
		if enabled {
			event = protocol.EvtVoiceStarted
		}
		frames = append(frames, protocol.MustEnvelope(event, protocol.RoomRef{RoomID: roomID}))
	}
	if enabled && muted != cur.Muted {
		frames = append(frames, protocol.MustEnvelope(protocol.EvtVoiceMuted, protocol.VoiceMute{RoomID: roomID, IsMuted: muted}))
	}
	if len(frames) == 0 {
		return nil
	}

	s.presence.SetPendingVoice(s.selfID, enabled, muted)
	if err := s.writeAll(frames); err != nil {
		s.presence.DiscardPending(s.selfID)
		return err
	}
	return nil
}

// clearRoom drops every cache scoped to the current room.
func (s *Session) clearRoom() {
	s.room = nil
	s.presence = nil
	s.chat.ClearRoom()
}

// resetDomain drops all cached state and the rejoin intent.
func (s *Session) resetDomain() {
	s.clearRoom()
	s.chat.Clear()
	s.wantLobby = false
	s.wantRoom = ""
}
