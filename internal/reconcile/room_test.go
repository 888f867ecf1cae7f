package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func player(id string, joined time.Duration) protocol.Player {
	return protocol.Player{UserID: id, Username: "name-" + id, JoinedAt: t0.Add(joined)}
}

func userIDs(players []protocol.Player) []string {
	out := make([]string, 0, len(players))
	for _, p := range players {
		out = append(out, p.UserID)
	}
	return out
}

func fetchedRoom(players ...protocol.Player) protocol.RoomSnapshot {
	return protocol.RoomSnapshot{
		ID:       "r1",
		Name:     "scrims",
		OwnerID:  "u1",
		Status:   protocol.RoomWaiting,
		Players:  players,
		Settings: protocol.RoomSettings{Capacity: 10, PickMode: "12221", TeamCount: 2},
	}
}

func kick(seq int64, uid string, at time.Time) RoomEvent {
	return RoomEvent{
		Kind:   protocol.EvtUserKicked,
		Patch:  protocol.RoomPatch{RoomID: "r1", Seq: seq, TS: at},
		UserID: uid,
		At:     at,
	}
}

func TestRoom_PushOrdering(t *testing.T) {
	cases := []struct {
		name       string
		lastSeq    int64
		seq        int64
		wantReason Reason
	}{
		{name: "newer applies", lastSeq: 3, seq: 4},
		{name: "older is stale", lastSeq: 3, seq: 2, wantReason: ReasonStale},
		{name: "same seq is duplicate", lastSeq: 3, seq: 3, wantReason: ReasonDuplicate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRoom("r1")
			require.NoError(t, r.ApplyFetch(fetchedRoom(player("u1", 0), player("u9", time.Second)), t0))
			r.lastSeq = tc.lastSeq

			err := r.ApplyPush(kick(tc.seq, "u9", t0.Add(time.Minute)))
			if tc.wantReason == "" {
				require.NoError(t, err)
				assert.Equal(t, []string{"u1"}, userIDs(r.Snapshot().Players))
				assert.Equal(t, tc.seq, r.LastSeq())
				return
			}
			assert.True(t, IsReason(err, tc.wantReason), "got %v", err)
			assert.Equal(t, []string{"u1", "u9"}, userIDs(r.Snapshot().Players), "rejected push must not change state")
			assert.Equal(t, tc.lastSeq, r.LastSeq())
		})
	}
}

func TestRoom_TimestampFallbackWhenSeqMissing(t *testing.T) {
	r := NewRoom("r1")
	at := t0.Add(time.Minute)
	require.NoError(t, r.ApplyPush(RoomEvent{
		Kind:     protocol.EvtSettingsChanged,
		Patch:    protocol.RoomPatch{RoomID: "r1", TS: at},
		Settings: protocol.RoomSettings{Capacity: 8},
		At:       at,
	}))

	err := r.ApplyPush(RoomEvent{
		Kind:     protocol.EvtSettingsChanged,
		Patch:    protocol.RoomPatch{RoomID: "r1", TS: at.Add(-time.Second)},
		Settings: protocol.RoomSettings{Capacity: 4},
		At:       at.Add(time.Second),
	})
	assert.True(t, IsReason(err, ReasonStale))
	assert.Equal(t, 8, r.Snapshot().Settings.Capacity)
}

func TestRoom_OtherRoomIsOutOfScope(t *testing.T) {
	r := NewRoom("r1")
	ev := kick(1, "u9", t0)
	ev.Patch.RoomID = "r2"
	assert.True(t, IsReason(r.ApplyPush(ev), ReasonOutOfScope))
	assert.True(t, IsReason(r.ApplyFetch(protocol.RoomSnapshot{ID: "r2"}, t0), ReasonOutOfScope))
}

func TestRoom_PlayerJoinedKeepsJoinOrder(t *testing.T) {
	r := NewRoom("r1")
	require.NoError(t, r.ApplyFetch(fetchedRoom(player("u1", 0), player("u3", 3*time.Second)), t0))

	require.NoError(t, r.ApplyPush(RoomEvent{
		Kind:   protocol.EvtPlayerJoined,
		Patch:  protocol.RoomPatch{RoomID: "r1", Seq: 1},
		Player: player("u2", 2*time.Second),
		UserID: "u2",
		At:     t0.Add(time.Second),
	}))
	assert.Equal(t, []string{"u1", "u2", "u3"}, userIDs(r.Snapshot().Players))

	// a redelivered join with a fresh seq must not duplicate the player
	require.NoError(t, r.ApplyPush(RoomEvent{
		Kind:   protocol.EvtPlayerJoined,
		Patch:  protocol.RoomPatch{RoomID: "r1", Seq: 2},
		Player: player("u2", 2*time.Second),
		UserID: "u2",
		At:     t0.Add(2 * time.Second),
	}))
	assert.Equal(t, []string{"u1", "u2", "u3"}, userIDs(r.Snapshot().Players))
}

func TestRoom_OwnerLeavesTransfersOwnership(t *testing.T) {
	r := NewRoom("r1")
	require.NoError(t, r.ApplyFetch(fetchedRoom(player("u1", 0), player("u2", time.Second)), t0))

	require.NoError(t, r.ApplyPush(RoomEvent{
		Kind:   protocol.EvtPlayerLeft,
		Patch:  protocol.RoomPatch{RoomID: "r1", Seq: 1},
		UserID: "u1",
		At:     t0.Add(time.Second),
	}))
	assert.Equal(t, "u2", r.Snapshot().OwnerID)
}

// A fetch issued at t0 that resolves at t2 must not revert a push received
// at t1 with t0 < t1 < t2.
func TestRoom_FetchDoesNotRevertLaterPush(t *testing.T) {
	issued := t0
	pushAt := t0.Add(500 * time.Millisecond)

	t.Run("kick is not resurrected", func(t *testing.T) {
		r := NewRoom("r1")
		require.NoError(t, r.ApplyPush(kick(7, "u9", pushAt)))
		require.NoError(t, r.ApplyFetch(fetchedRoom(player("u1", 0), player("u9", time.Second)), issued))

		assert.Equal(t, []string{"u1"}, userIDs(r.Snapshot().Players))
	})

	t.Run("join is kept", func(t *testing.T) {
		r := NewRoom("r1")
		require.NoError(t, r.ApplyPush(RoomEvent{
			Kind:   protocol.EvtPlayerJoined,
			Patch:  protocol.RoomPatch{RoomID: "r1", Seq: 1},
			Player: player("u5", 5*time.Second),
			UserID: "u5",
			At:     pushAt,
		}))
		require.NoError(t, r.ApplyFetch(fetchedRoom(player("u1", 0)), issued))

		assert.Equal(t, []string{"u1", "u5"}, userIDs(r.Snapshot().Players))
	})

	t.Run("settings and status are kept", func(t *testing.T) {
		r := NewRoom("r1")
		require.NoError(t, r.ApplyPush(RoomEvent{
			Kind:     protocol.EvtSettingsChanged,
			Patch:    protocol.RoomPatch{RoomID: "r1", Seq: 1},
			Name:     "finals",
			Settings: protocol.RoomSettings{Capacity: 6, PickMode: "snake", TeamCount: 2},
			At:       pushAt,
		}))
		require.NoError(t, r.ApplyPush(RoomEvent{
			Kind:  protocol.EvtGameStarted,
			Patch: protocol.RoomPatch{RoomID: "r1", Seq: 2},
			At:    pushAt,
		}))
		require.NoError(t, r.ApplyFetch(fetchedRoom(player("u1", 0)), issued))

		snap := r.Snapshot()
		assert.Equal(t, "finals", snap.Name)
		assert.Equal(t, 6, snap.Settings.Capacity)
		assert.Equal(t, protocol.RoomInProgress, snap.Status)
		assert.Equal(t, "u1", snap.OwnerID, "untouched fields come from the fetch")
	})

	t.Run("team assignment is kept", func(t *testing.T) {
		r := NewRoom("r1")
		require.NoError(t, r.ApplyFetch(fetchedRoom(player("u1", 0)), t0.Add(-time.Minute)))
		require.NoError(t, r.ApplyPush(RoomEvent{
			Kind:      protocol.EvtTeamAssigned,
			Patch:     protocol.RoomPatch{RoomID: "r1", Seq: 1},
			UserID:    "u1",
			TeamID:    2,
			IsCaptain: true,
			At:        pushAt,
		}))
		require.NoError(t, r.ApplyFetch(fetchedRoom(player("u1", 0)), issued))

		p, ok := r.Snapshot().Player("u1")
		require.True(t, ok)
		assert.Equal(t, 2, p.TeamID)
		assert.True(t, p.IsCaptain)
	})
}

func TestRoom_FetchOverridesOlderPushes(t *testing.T) {
	r := NewRoom("r1")
	require.NoError(t, r.ApplyPush(kick(1, "u9", t0)))

	// the fetch was issued after the kick was received, so it is authoritative
	require.NoError(t, r.ApplyFetch(fetchedRoom(player("u1", 0), player("u9", time.Second)), t0.Add(time.Second)))
	assert.Equal(t, []string{"u1", "u9"}, userIDs(r.Snapshot().Players))
	assert.Equal(t, int64(1), r.LastSeq(), "fetch carries no ordering token")
}

func TestDecodeRoomEvent(t *testing.T) {
	env := protocol.MustEnvelope(protocol.EvtUserKicked, protocol.PlayerLeft{
		RoomPatch: protocol.RoomPatch{RoomID: "r1", Seq: 4},
		UserID:    "u9",
	})
	ev, err := DecodeRoomEvent(env, t0)
	require.NoError(t, err)
	assert.Equal(t, "u9", ev.UserID)
	assert.Equal(t, int64(4), ev.Patch.Seq)
	assert.Equal(t, t0, ev.At)

	_, err = DecodeRoomEvent(protocol.Envelope{Event: protocol.EvtRoomMessage}, t0)
	assert.Error(t, err)
}
