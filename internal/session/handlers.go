package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/api"
	"github.com/DoyleJ11/lol-lobby-client/internal/dispatch"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/reconcile"
)

// registerHandlers binds every server event for the live epoch.
func (s *Session) registerHandlers() {
	d := s.disp
	d.Register(protocol.EvtLobbyJoined, s.onAck(protocol.EvtLobbyJoined))
	d.Register(protocol.EvtLobbyLeft, s.onAck(protocol.EvtLobbyLeft))
	d.Register(protocol.EvtRoomJoined, s.onAck(protocol.EvtRoomJoined))
	d.Register(protocol.EvtRoomLeft, s.onAck(protocol.EvtRoomLeft))
	d.Register(protocol.EvtUserKicked, s.onUserKicked)
	for _, name := range []string{
		protocol.EvtPlayerJoined,
		protocol.EvtPlayerLeft,
		protocol.EvtSettingsChanged,
		protocol.EvtTeamAssigned,
		protocol.EvtGameStarted,
		protocol.EvtGameEnded,
	} {
		d.Register(name, s.onRoomPatch(name))
	}
	d.Register(protocol.EvtLobbyMessage, s.onChat(protocol.EvtLobbyMessage))
	d.Register(protocol.EvtRoomMessage, s.onChat(protocol.EvtRoomMessage))
	for _, name := range []string{
		protocol.EvtVoiceStarted,
		protocol.EvtVoiceEnded,
		protocol.EvtVoiceMuted,
		protocol.EvtPlayerReady,
	} {
		d.Register(name, s.onPresence(name))
	}
	d.Register(protocol.EvtError, s.onServerError)
}

func (s *Session) onAck(event string) dispatch.Handler {
	return func(raw json.RawMessage) error {
		var ref protocol.RoomRef
		if err := (protocol.Envelope{Event: event, Data: raw}).Decode(&ref); err != nil {
			return err
		}
		if !s.tracker.Ack(event, ref.RoomID, s.epoch) {
			s.log.Debug("unmatched ack ignored", zap.String("event", event), zap.String("room_id", ref.RoomID))
			return nil
		}
		switch event {
		case protocol.EvtLobbyJoined:
			s.fetchLobbyHistory()
		case protocol.EvtRoomJoined:
			if m, ok := s.tracker.Room(); ok {
				s.fetchRoom(m.RoomID)
			}
		}
		return nil
	}
}

func (s *Session) onUserKicked(raw json.RawMessage) error {
	env := protocol.Envelope{Event: protocol.EvtUserKicked, Data: raw}
	var p protocol.PlayerLeft
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.UserID != "" && p.UserID == s.selfID {
		s.kicked(p.RoomID)
		return nil
	}
	return s.applyRoomPush(env)
}

func (s *Session) onRoomPatch(event string) dispatch.Handler {
	return func(raw json.RawMessage) error {
		return s.applyRoomPush(protocol.Envelope{Event: event, Data: raw})
	}
}

func (s *Session) applyRoomPush(env protocol.Envelope) error {
	if s.room == nil {
		s.log.Debug("room push without room", zap.String("event", env.Event))
		return nil
	}
	ev, err := reconcile.DecodeRoomEvent(env, s.recvAt)
	if err != nil {
		return err
	}
	if err := s.room.ApplyPush(ev); err != nil {
		s.log.Debug("room push dropped", zap.Error(err))
		return nil
	}
	if s.presence == nil {
		return nil
	}
	switch ev.Kind {
	case protocol.EvtPlayerJoined, protocol.EvtPlayerLeft, protocol.EvtUserKicked:
		err := s.presence.ApplyPush(reconcile.PresenceEvent{Kind: ev.Kind, RoomID: ev.Patch.RoomID, UserID: ev.UserID})
		if err != nil {
			s.log.Debug("presence push dropped", zap.Error(err))
		}
	}
	return nil
}

// kicked handles the local user being removed from roomID.
func (s *Session) kicked(roomID string) {
	if s.room == nil || (roomID != "" && roomID != s.room.ID()) {
		return
	}
	id := s.room.ID()
	s.tracker.Kicked(id)
	s.clearRoom()
	s.wantRoom = ""
	s.emit(StatusEvent{Kind: KindKicked, RoomID: id, Err: ErrKicked})
}

func (s *Session) onChat(event string) dispatch.Handler {
	return func(raw json.RawMessage) error {
		var m protocol.Message
		if err := (protocol.Envelope{Event: event, Data: raw}).Decode(&m); err != nil {
			return err
		}

		ch := protocol.ChannelLobby
		if event == protocol.EvtLobbyMessage {
			if !s.tracker.InLobby() {
				return nil
			}
			m.RoomID = ""
		} else {
			if s.room == nil {
				return nil
			}
			if m.RoomID == "" {
				m.RoomID = s.room.ID()
			}
			if m.RoomID != s.room.ID() {
				s.log.Debug("message for another room dropped", zap.String("room_id", m.RoomID))
				return nil
			}
			ch = m.ChannelOf()
		}

		if err := s.chat.ApplyPush(ch, m); err != nil {
			s.log.Debug("chat push dropped", zap.String("channel", string(ch)), zap.Error(err))
		}
		return nil
	}
}

func (s *Session) onPresence(event string) dispatch.Handler {
	return func(raw json.RawMessage) error {
		if s.presence == nil {
			return nil
		}
		ev, err := reconcile.DecodePresenceEvent(protocol.Envelope{Event: event, Data: raw})
		if err != nil {
			return err
		}
		if err := s.presence.ApplyPush(ev); err != nil {
			s.log.Debug("presence push dropped", zap.Error(err))
		}
		return nil
	}
}

func (s *Session) onServerError(raw json.RawMessage) error {
	var p protocol.ErrorPayload
	if err := (protocol.Envelope{Event: protocol.EvtError, Data: raw}).Decode(&p); err != nil {
		return err
	}
	if p.Code == protocol.CodeUnauthorized {
		s.emit(StatusEvent{Kind: KindUnauthorized, Err: errors.New(p.Message)})
		return nil
	}
	s.emit(StatusEvent{Kind: KindError, Err: errors.New(p.Message)})
	return nil
}

// fetches

// historyPage is the page size asked for by LoadHistory.
const historyPage = 50

func (s *Session) request(fn func(ctx context.Context) sessionMsg) {
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RequestTimeout)
		defer cancel()
		s.post(fn(ctx))
	}()
}

func (s *Session) fetchRoom(roomID string) {
	if s.opts.API == nil {
		return
	}
	issuedAt := s.opts.Now()
	s.request(func(ctx context.Context) sessionMsg {
		snap, err := s.opts.API.RoomDetail(ctx, roomID)
		return roomFetched{roomID: roomID, issuedAt: issuedAt, snap: snap, err: err}
	})
	s.fetchHistory(protocol.ChannelPublic, roomID, api.HistoryQuery{}, nil)
}

func (s *Session) fetchLobbyHistory() {
	if s.opts.API == nil {
		return
	}
	s.fetchHistory(protocol.ChannelLobby, "", api.HistoryQuery{}, nil)
}

func (s *Session) fetchHistory(ch protocol.Channel, roomID string, q api.HistoryQuery, reply chan historyResult) {
	s.request(func(ctx context.Context) sessionMsg {
		var (
			msgs []protocol.Message
			err  error
		)
		if roomID == "" {
			msgs, err = s.opts.API.LobbyMessages(ctx, q)
		} else {
			msgs, err = s.opts.API.RoomMessages(ctx, roomID, q)
		}
		return historyFetched{ch: ch, roomID: roomID, msgs: msgs, err: err, reply: reply}
	})
}

// handleLoadHistory starts a LoadHistory fetch. The reply is sent when the
// page has been merged.
func (s *Session) handleLoadHistory(c historyCmd) error {
	if !c.ch.Valid() {
		return &CommandError{Kind: NotInChannel, Channel: c.ch}
	}
	if s.opts.API == nil {
		return ErrNoAPI
	}
	roomID := ""
	if c.ch.InRoom() {
		if s.room == nil || !s.tracker.InRoom(s.room.ID()) {
			return &CommandError{Kind: NotInChannel, Channel: c.ch}
		}
		roomID = s.room.ID()
	} else if !s.tracker.InLobby() {
		return &CommandError{Kind: NotInChannel, Channel: c.ch}
	}

	before := c.before
	if before.IsZero() {
		before = s.oldest(c.ch)
	}
	s.fetchHistory(c.ch, roomID, api.HistoryQuery{Before: before, Limit: historyPage}, c.reply)
	return nil
}

// oldest is the time of the earliest confirmed message of ch, or zero.
func (s *Session) oldest(ch protocol.Channel) time.Time {
	for _, m := range s.chat.Messages(ch) {
		if !m.Pending {
			return m.Time
		}
	}
	return time.Time{}
}

func (s *Session) handleRoomFetched(f roomFetched) {
	if f.err != nil {
		s.requestFailed("room detail", f.err)
		return
	}
	if s.room == nil || s.room.ID() != f.roomID {
		s.log.Debug("room fetch discarded", zap.String("room_id", f.roomID))
		return
	}
	if err := s.room.ApplyFetch(f.snap, f.issuedAt); err != nil {
		s.log.Debug("room fetch dropped", zap.Error(err))
		return
	}
	s.log.Debug("room fetch merged",
		zap.String("room_id", f.roomID),
		zap.Duration("latency", s.opts.Now().Sub(f.issuedAt).Round(time.Millisecond)))
}

func (s *Session) handleHistory(h historyFetched) {
	if h.err != nil {
		if h.reply == nil {
			s.requestFailed("chat history", h.err)
			return
		}
		if errors.Is(h.err, api.ErrUnauthorized) {
			s.emit(StatusEvent{Kind: KindUnauthorized, Err: h.err})
		}
		h.reply <- historyResult{err: fmt.Errorf("load history: %w", h.err)}
		return
	}
	added, ok := s.mergeHistory(h)
	if h.reply == nil {
		return
	}
	if !ok {
		h.reply <- historyResult{err: &CommandError{Kind: NotInChannel, Channel: h.ch}}
		return
	}
	h.reply <- historyResult{added: added}
}

// mergeHistory applies a fetched page if its channel is still held.
func (s *Session) mergeHistory(h historyFetched) (int, bool) {
	if h.roomID == "" {
		if !s.tracker.InLobby() {
			s.log.Debug("lobby result dropped", zap.String("kind", "history"))
			return 0, false
		}
		return s.chat.ApplyFetch(protocol.ChannelLobby, h.msgs), true
	}
	if s.room == nil || s.room.ID() != h.roomID {
		return 0, false
	}
	byChannel := make(map[protocol.Channel][]protocol.Message)
	for _, m := range h.msgs {
		if m.RoomID == "" {
			m.RoomID = h.roomID
		}
		ch := m.ChannelOf()
		byChannel[ch] = append(byChannel[ch], m)
	}
	added := 0
	for ch, msgs := range byChannel {
		added += s.chat.ApplyFetch(ch, msgs)
	}
	return added, true
}

func (s *Session) handlePersisted(p persisted) {
	if p.err != nil {
		s.chat.Remove(p.ch, p.clientMsgID)
		s.requestFailed("send message", p.err)
		return
	}
	if p.msg.ID == "" {
		return
	}
	if p.ch == protocol.ChannelLobby && !s.tracker.InLobby() {
		s.log.Debug("lobby result dropped", zap.String("kind", "persisted"))
		return
	}
	if p.ch.InRoom() && (s.room == nil || (p.msg.RoomID != "" && p.msg.RoomID != s.room.ID())) {
		return
	}
	if p.msg.ClientMsgID == "" {
		p.msg.ClientMsgID = p.clientMsgID
	}
	if err := s.chat.ApplyPush(p.ch, p.msg); err != nil {
		s.log.Debug("persisted message already present", zap.Error(err))
	}
}

// requestFailed reports a failed REST call. A 401 asks the owning context to
// re-authenticate.
func (s *Session) requestFailed(what string, err error) {
	if errors.Is(err, api.ErrUnauthorized) {
		s.emit(StatusEvent{Kind: KindUnauthorized, Err: err})
		return
	}
	s.emit(StatusEvent{Kind: KindError, Err: fmt.Errorf("%s: %w", what, err)})
}
