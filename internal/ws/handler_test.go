package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/hub"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/transport"
)

// revocableVerifier accepts "good" until revoked.
type revocableVerifier struct{ revoked atomic.Bool }

func (v *revocableVerifier) Verify(token string) (protocol.User, error) {
	if token != "good" || v.revoked.Load() {
		return protocol.User{}, errors.New("invalid token")
	}
	return protocol.User{ID: "u1", Username: "alice"}, nil
}

func newEndpoint(t *testing.T) (*revocableVerifier, *transport.WSDialer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	v := &revocableVerifier{}
	srv := httptest.NewServer(Handler(hub.NewHub(ctx, nil, zap.NewNop()), v, zap.NewNop()))
	t.Cleanup(srv.Close)
	return v, &transport.WSDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func readFrame(t *testing.T, ctx context.Context, c transport.Conn, event string) protocol.Envelope {
	t.Helper()
	for {
		env, err := c.Read(ctx)
		require.NoError(t, err)
		if env.Event == event {
			return env
		}
	}
}

func TestHandler_RejectsBadTokenBeforeUpgrade(t *testing.T) {
	_, d := newEndpoint(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := d.Dial(ctx, "bad")
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrAuthRejected))
}

func TestHandler_ErrorCodes(t *testing.T) {
	_, d := newEndpoint(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := d.Dial(ctx, "good")
	require.NoError(t, err)
	defer c.Close()

	var ack protocol.ConnectAck
	require.NoError(t, readFrame(t, ctx, c, protocol.EvtConnect).Decode(&ack))
	assert.Equal(t, "u1", ack.UserID)

	require.NoError(t, c.Write(ctx, protocol.MustEnvelope(protocol.EvtRoomMessage, protocol.SendMessage{RoomID: "NOPE", Content: "hi"})))
	var p protocol.ErrorPayload
	require.NoError(t, readFrame(t, ctx, c, protocol.EvtError).Decode(&p))
	assert.Equal(t, protocol.CodeNotInRoom, p.Code)

	require.NoError(t, c.Write(ctx, protocol.MustEnvelope(protocol.EvtJoinRoom, protocol.RoomRef{RoomID: "NOPE"})))
	require.NoError(t, readFrame(t, ctx, c, protocol.EvtError).Decode(&p))
	assert.Equal(t, protocol.CodeRoomNotFound, p.Code)
}

func TestHandler_RevokedTokenClosesWithUnauthorized(t *testing.T) {
	v, d := newEndpoint(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := d.Dial(ctx, "good")
	require.NoError(t, err)
	defer c.Close()
	readFrame(t, ctx, c, protocol.EvtConnect)

	v.revoked.Store(true)
	require.NoError(t, c.Write(ctx, protocol.MustEnvelope(protocol.EvtJoinLobby, nil)))

	var p protocol.ErrorPayload
	require.NoError(t, readFrame(t, ctx, c, protocol.EvtError).Decode(&p))
	assert.Equal(t, protocol.CodeUnauthorized, p.Code)

	_, err = c.Read(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrAuthRejected), "got %v", err)
}
