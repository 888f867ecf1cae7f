package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

func TestPresence_Pushes(t *testing.T) {
	cases := []struct {
		name   string
		events []PresenceEvent
		want   map[string]PresenceState
	}{
		{
			name:   "ready",
			events: []PresenceEvent{{Kind: protocol.EvtPlayerReady, UserID: "u1", Ready: true}},
			want:   map[string]PresenceState{"u1": {Status: StatusReady}},
		},
		{
			name: "ready then unready",
			events: []PresenceEvent{
				{Kind: protocol.EvtPlayerReady, UserID: "u1", Ready: true},
				{Kind: protocol.EvtPlayerReady, UserID: "u1", Ready: false},
			},
			want: map[string]PresenceState{"u1": {Status: StatusOnline}},
		},
		{
			name: "voice start and mute",
			events: []PresenceEvent{
				{Kind: protocol.EvtVoiceStarted, UserID: "u2"},
				{Kind: protocol.EvtVoiceMuted, UserID: "u2", IsMuted: true},
			},
			want: map[string]PresenceState{"u2": {Status: StatusOnline, VoiceEnabled: true, Muted: true}},
		},
		{
			name: "voice end clears mute",
			events: []PresenceEvent{
				{Kind: protocol.EvtVoiceStarted, UserID: "u2"},
				{Kind: protocol.EvtVoiceMuted, UserID: "u2", IsMuted: true},
				{Kind: protocol.EvtVoiceEnded, UserID: "u2"},
			},
			want: map[string]PresenceState{"u2": {Status: StatusOnline}},
		},
		{
			name: "join does not reset existing state",
			events: []PresenceEvent{
				{Kind: protocol.EvtPlayerReady, UserID: "u1", Ready: true},
				{Kind: protocol.EvtPlayerJoined, UserID: "u1"},
				{Kind: protocol.EvtPlayerJoined, UserID: "u3"},
			},
			want: map[string]PresenceState{"u1": {Status: StatusReady}, "u3": {Status: StatusOnline}},
		},
		{
			name: "kick removes",
			events: []PresenceEvent{
				{Kind: protocol.EvtPlayerReady, UserID: "u1", Ready: true},
				{Kind: protocol.EvtUserKicked, UserID: "u1"},
			},
			want: map[string]PresenceState{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPresence("r1")
			for _, ev := range tc.events {
				require.NoError(t, p.ApplyPush(ev))
			}
			assert.Equal(t, tc.want, p.Confirmed())
		})
	}
}

func TestPresence_RejectsOtherRoom(t *testing.T) {
	p := NewPresence("r1")
	err := p.ApplyPush(PresenceEvent{Kind: protocol.EvtPlayerReady, RoomID: "r2", UserID: "u1", Ready: true})
	assert.True(t, IsReason(err, ReasonOutOfScope))
	assert.Empty(t, p.Confirmed())

	assert.True(t, IsReason(p.ApplyPush(PresenceEvent{Kind: protocol.EvtPlayerReady}), ReasonInvalid))
}

func TestPresence_PendingOverlay(t *testing.T) {
	p := NewPresence("r1")
	require.NoError(t, p.ApplyPush(PresenceEvent{Kind: protocol.EvtPlayerJoined, UserID: "me"}))

	p.SetPendingReady("me", true)
	p.SetPendingVoice("me", true, true)

	assert.Equal(t, PresenceState{Status: StatusOnline}, p.Confirmed()["me"], "overlay never touches confirmed state")
	assert.Equal(t, PresenceState{Status: StatusReady, VoiceEnabled: true, Muted: true}, p.View()["me"])

	// the ready echo settles only the ready aspect
	require.NoError(t, p.ApplyPush(PresenceEvent{Kind: protocol.EvtPlayerReady, UserID: "me", Ready: true}))
	assert.Equal(t, PresenceState{Status: StatusReady, VoiceEnabled: true, Muted: true}, p.View()["me"])
	assert.Equal(t, PresenceState{Status: StatusReady}, p.Confirmed()["me"])

	p.DiscardPending("me")
	assert.Equal(t, PresenceState{Status: StatusReady}, p.View()["me"])
}

func TestPresence_Clear(t *testing.T) {
	p := NewPresence("r1")
	require.NoError(t, p.ApplyPush(PresenceEvent{Kind: protocol.EvtVoiceStarted, UserID: "u1"}))
	p.SetPendingReady("u1", true)

	p.Clear()
	assert.Empty(t, p.View())
	assert.Equal(t, "r1", p.RoomID())
}

func TestDecodePresenceEvent(t *testing.T) {
	ev, err := DecodePresenceEvent(protocol.MustEnvelope(protocol.EvtVoiceMuted, protocol.VoiceEvent{
		RoomID: "r1", UserID: "u1", IsMuted: true,
	}))
	require.NoError(t, err)
	assert.Equal(t, PresenceEvent{Kind: protocol.EvtVoiceMuted, RoomID: "r1", UserID: "u1", IsMuted: true}, ev)

	_, err = DecodePresenceEvent(protocol.Envelope{Event: protocol.EvtRoomJoined})
	assert.True(t, IsReason(err, ReasonInvalid))
}
