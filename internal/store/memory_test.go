package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

func TestMemory_SaveDeduplicatesByClientID(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	in := protocol.Message{RoomID: "r1", UserID: "u1", ClientMsgID: "c1", Content: "hi"}

	first, created, err := s.Save(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Time.IsZero())

	second, created, err := s.Save(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)

	// same client id from another user is a different message
	other, created, err := s.Save(ctx, protocol.Message{RoomID: "r1", UserID: "u2", ClientMsgID: "c1", Content: "hi"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	msgs, err := s.List(ctx, "r1", Page{})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestMemory_ListScopesAndLimits(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	for i := range 5 {
		_, _, err := s.Save(ctx, protocol.Message{UserID: "u1", Content: fmt.Sprintf("lobby %d", i)})
		require.NoError(t, err)
	}
	_, _, err := s.Save(ctx, protocol.Message{RoomID: "r1", UserID: "u1", Content: "room"})
	require.NoError(t, err)

	lobby, err := s.List(ctx, "", Page{Limit: 3})
	require.NoError(t, err)
	require.Len(t, lobby, 3)
	assert.Equal(t, "lobby 2", lobby[0].Content, "oldest of the latest three first")
	assert.Equal(t, "lobby 4", lobby[2].Content)

	room, err := s.List(ctx, "r1", Page{})
	require.NoError(t, err)
	require.Len(t, room, 1)
	assert.Equal(t, "room", room[0].Content)
}

func TestMemory_RejectsEmptyContent(t *testing.T) {
	_, _, err := NewMemory().Save(context.Background(), protocol.Message{UserID: "u1"})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestMemory_ListBefore(t *testing.T) {
	s := NewMemory()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()
	for i := range 6 {
		_, _, err := s.Save(ctx, protocol.Message{UserID: "u1", Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	// m3 was saved at base+4s; the page before it ends at m2
	page, err := s.List(ctx, "", Page{Before: base.Add(4 * time.Second), Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m1", page[0].Content)
	assert.Equal(t, "m2", page[1].Content)

	page, err = s.List(ctx, "", Page{Before: base.Add(time.Second)})
	require.NoError(t, err)
	assert.Empty(t, page)
}
