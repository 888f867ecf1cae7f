package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

func TestIssuer_RoundTripAndExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := NewIssuer("secret", time.Hour)
	iss.now = func() time.Time { return now }

	tok, err := iss.Issue(protocol.User{ID: "u1", Username: "faker"})
	require.NoError(t, err)

	u, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, protocol.User{ID: "u1", Username: "faker"}, u)

	// the client side pre-check agrees with the server
	assert.NoError(t, CheckExpiry(tok, now))
	assert.ErrorIs(t, CheckExpiry(tok, now.Add(time.Hour)), ErrExpired)

	iss.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = iss.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewIssuer("other", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccounts_Login(t *testing.T) {
	a := NewAccounts()

	u1, err := a.Login("Caps", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, u1.ID)

	again, err := a.Login("caps", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, u1.ID, again.ID, "usernames are case-insensitive")

	_, err = a.Login("Caps", "wrong")
	assert.ErrorIs(t, err, ErrBadPassword)

	_, err = a.Login("x", "")
	assert.ErrorIs(t, err, ErrBadUsername)

	open, err := a.Login("jankos", "")
	require.NoError(t, err)
	same, err := a.Login("jankos", "anything")
	require.NoError(t, err)
	assert.Equal(t, open, same)

	got, ok := a.Lookup(u1.ID)
	assert.True(t, ok)
	assert.Equal(t, "Caps", got.Username)
}
