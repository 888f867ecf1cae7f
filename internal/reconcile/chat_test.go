package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

func msg(id, clientID string, at time.Duration) protocol.Message {
	return protocol.Message{
		ID:          id,
		ClientMsgID: clientID,
		RoomID:      "r1",
		UserID:      "u1",
		Content:     "gl hf",
		Time:        t0.Add(at),
	}
}

func contents(msgs []protocol.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestTimeline_EchoReplacesLocalEntry(t *testing.T) {
	tl := NewTimeline()
	require.NoError(t, tl.AppendLocal(msg("", "c1", 0)))
	require.Equal(t, 1, tl.Len())
	assert.True(t, tl.Messages()[0].Pending)

	require.NoError(t, tl.ApplyPush(msg("m1", "c1", time.Second)))

	got := tl.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
	assert.False(t, got[0].Pending)

	// redelivered echo, with or without the client id
	assert.True(t, IsReason(tl.ApplyPush(msg("m1", "c1", time.Second)), ReasonDuplicate))
	assert.True(t, IsReason(tl.ApplyPush(msg("m2", "c1", time.Second)), ReasonDuplicate))
	assert.Equal(t, 1, tl.Len())
}

func TestTimeline_AppendLocalRequiresClientID(t *testing.T) {
	tl := NewTimeline()
	assert.True(t, IsReason(tl.AppendLocal(msg("", "", 0)), ReasonInvalid))
	require.NoError(t, tl.AppendLocal(msg("", "c1", 0)))
	assert.True(t, IsReason(tl.AppendLocal(msg("", "c1", 0)), ReasonDuplicate))
	assert.Equal(t, 1, tl.Len())
}

func TestTimeline_PushRequiresID(t *testing.T) {
	tl := NewTimeline()
	assert.True(t, IsReason(tl.ApplyPush(msg("", "", 0)), ReasonInvalid))
	assert.Zero(t, tl.Len())
}

func TestTimeline_KeepsTimeOrder(t *testing.T) {
	tl := NewTimeline()
	a, b, c := msg("a", "", 1*time.Second), msg("b", "", 2*time.Second), msg("c", "", 3*time.Second)
	a.Content, b.Content, c.Content = "a", "b", "c"

	require.NoError(t, tl.ApplyPush(c))
	require.NoError(t, tl.ApplyPush(a))
	require.NoError(t, tl.ApplyPush(b))

	assert.Equal(t, []string{"a", "b", "c"}, contents(tl.Messages()))
}

func TestTimeline_FetchSkipsKnownMessages(t *testing.T) {
	tl := NewTimeline()
	require.NoError(t, tl.ApplyPush(msg("m2", "", 2*time.Second)))

	added := tl.ApplyFetch([]protocol.Message{
		msg("m1", "", time.Second),
		msg("m2", "", 2*time.Second),
		msg("m3", "", 3*time.Second),
	})
	assert.Equal(t, 2, added)
	assert.Equal(t, 3, tl.Len())

	assert.Zero(t, tl.ApplyFetch([]protocol.Message{msg("m1", "", time.Second)}))
}

func TestTimeline_HistoryConfirmsPendingEntry(t *testing.T) {
	tl := NewTimeline()
	require.NoError(t, tl.AppendLocal(msg("", "c1", 0)))

	assert.Equal(t, 1, tl.ApplyFetch([]protocol.Message{msg("m1", "c1", 0)}))
	got := tl.Messages()
	require.Len(t, got, 1)
	assert.False(t, got[0].Pending)
}

func TestTimeline_RemoveOnlyDropsPending(t *testing.T) {
	tl := NewTimeline()
	require.NoError(t, tl.AppendLocal(msg("", "c1", 0)))
	require.NoError(t, tl.ApplyPush(msg("m2", "c2", time.Second)))

	assert.True(t, tl.Remove("c1"))
	assert.False(t, tl.Remove("c1"))
	assert.False(t, tl.Remove("c2"), "confirmed message stays")
	assert.Equal(t, 1, tl.Len())
}

func TestChat_ClearScopes(t *testing.T) {
	c := NewChat()
	lobby := msg("l1", "", 0)
	lobby.RoomID = ""
	require.NoError(t, c.ApplyPush(lobby.ChannelOf(), lobby))
	require.NoError(t, c.ApplyPush(protocol.ChannelPublic, msg("p1", "", 0)))
	team := msg("t1", "", 0)
	team.TeamID = 2
	require.NoError(t, c.ApplyPush(team.ChannelOf(), team))

	c.ClearRoom()
	assert.Len(t, c.Messages(protocol.ChannelLobby), 1)
	assert.Empty(t, c.Messages(protocol.ChannelPublic))
	assert.Empty(t, c.Messages(protocol.TeamChannel(2)))

	c.ClearLobby()
	assert.Empty(t, c.Messages(protocol.ChannelLobby))
}
