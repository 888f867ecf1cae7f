package reconcile

import (
	"maps"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

type Status string

const (
	StatusOnline Status = "online"
	StatusReady  Status = "ready"
)

// PresenceState is one user's state inside the active room.
type PresenceState struct {
	Status       Status `json:"status"`
	VoiceEnabled bool   `json:"voiceEnabled"`
	Muted        bool   `json:"muted"`
}

// PresenceEvent is a decoded presence push.
type PresenceEvent struct {
	Kind    string
	RoomID  string
	UserID  string
	Ready   bool
	IsMuted bool
}

// DecodePresenceEvent decodes voice, ready and roster pushes that affect
// presence.
func DecodePresenceEvent(env protocol.Envelope) (PresenceEvent, error) {
	ev := PresenceEvent{Kind: env.Event}
	switch env.Event {
	case protocol.EvtVoiceStarted, protocol.EvtVoiceEnded, protocol.EvtVoiceMuted:
		var p protocol.VoiceEvent
		if err := env.Decode(&p); err != nil {
			return ev, err
		}
		ev.RoomID, ev.UserID, ev.IsMuted = p.RoomID, p.UserID, p.IsMuted
	case protocol.EvtPlayerReady:
		var p protocol.ReadyEvent
		if err := env.Decode(&p); err != nil {
			return ev, err
		}
		ev.RoomID, ev.UserID, ev.Ready = p.RoomID, p.UserID, p.Ready
	default:
		return ev, warn(ReasonInvalid, env.Event, "not a presence event")
	}
	return ev, nil
}

type pendingPresence struct {
	ready *bool
	voice *PresenceState
}

// Presence tracks the confirmed state of every user in one room plus an
// overlay of the local user's unconfirmed changes. Confirmed state changes
// only through ApplyPush.
type Presence struct {
	roomID    string
	confirmed map[string]PresenceState
	pending   map[string]pendingPresence
}

func NewPresence(roomID string) *Presence {
	return &Presence{
		roomID:    roomID,
		confirmed: make(map[string]PresenceState),
		pending:   make(map[string]pendingPresence),
	}
}

func (p *Presence) RoomID() string { return p.roomID }

func (p *Presence) ApplyPush(ev PresenceEvent) error {
	if ev.RoomID != "" && ev.RoomID != p.roomID {
		return warn(ReasonOutOfScope, ev.Kind, "room "+ev.RoomID)
	}
	if ev.UserID == "" {
		return warn(ReasonInvalid, ev.Kind, "missing user id")
	}

	st, ok := p.confirmed[ev.UserID]
	if !ok {
		st.Status = StatusOnline
	}
	pend := p.pending[ev.UserID]

	switch ev.Kind {
	case protocol.EvtVoiceStarted:
		st.VoiceEnabled = true
		pend.voice = nil
	case protocol.EvtVoiceEnded:
		st.VoiceEnabled, st.Muted = false, false
		pend.voice = nil
	case protocol.EvtVoiceMuted:
		st.Muted = ev.IsMuted
		pend.voice = nil
	case protocol.EvtPlayerReady:
		st.Status = StatusOnline
		if ev.Ready {
			st.Status = StatusReady
		}
		pend.ready = nil
	case protocol.EvtPlayerJoined:
		if ok {
			return nil
		}
	case protocol.EvtPlayerLeft, protocol.EvtUserKicked:
		p.Remove(ev.UserID)
		return nil
	default:
		return warn(ReasonInvalid, ev.Kind, "not a presence event")
	}

	p.confirmed[ev.UserID] = st
	p.setPending(ev.UserID, pend)
	return nil
}

// SetPendingReady records an unconfirmed ready toggle for userID.
func (p *Presence) SetPendingReady(userID string, ready bool) {
	pend := p.pending[userID]
	pend.ready = &ready
	p.pending[userID] = pend
}

// SetPendingVoice records an unconfirmed voice change for userID.
func (p *Presence) SetPendingVoice(userID string, enabled, muted bool) {
	pend := p.pending[userID]
	pend.voice = &PresenceState{VoiceEnabled: enabled, Muted: enabled && muted}
	p.pending[userID] = pend
}

// DiscardPending drops every unconfirmed change for userID.
func (p *Presence) DiscardPending(userID string) { delete(p.pending, userID) }

func (p *Presence) Remove(userID string) {
	delete(p.confirmed, userID)
	delete(p.pending, userID)
}

// Confirmed returns the pushed state only.
func (p *Presence) Confirmed() map[string]PresenceState {
	return maps.Clone(p.confirmed)
}

// View returns confirmed state with pending local changes laid over it.
func (p *Presence) View() map[string]PresenceState {
	out := maps.Clone(p.confirmed)
	for uid, pend := range p.pending {
		st, ok := out[uid]
		if !ok {
			st.Status = StatusOnline
		}
		if pend.ready != nil {
			st.Status = StatusOnline
			if *pend.ready {
				st.Status = StatusReady
			}
		}
		if pend.voice != nil {
			st.VoiceEnabled, st.Muted = pend.voice.VoiceEnabled, pend.voice.Muted
		}
		out[uid] = st
	}
	return out
}

func (p *Presence) Clear() {
	clear(p.confirmed)
	clear(p.pending)
}

func (p *Presence) setPending(uid string, pend pendingPresence) {
	if pend.ready == nil && pend.voice == nil {
		delete(p.pending, uid)
		return
	}
	p.pending[uid] = pend
}
