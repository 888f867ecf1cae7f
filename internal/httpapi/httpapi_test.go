package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/api"
	"github.com/DoyleJ11/lol-lobby-client/internal/auth"
	"github.com/DoyleJ11/lol-lobby-client/internal/hub"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/session"
	"github.com/DoyleJ11/lol-lobby-client/internal/store"
	"github.com/DoyleJ11/lol-lobby-client/internal/transport"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(ctx, store.NewMemory(), zap.NewNop())
	srv := httptest.NewServer(SetupRoutes(h, auth.NewAccounts(), auth.NewIssuer("test-secret", time.Hour), zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

// login returns an api client authenticated as username.
func login(t *testing.T, srv *httptest.Server, username string) (*api.Client, api.LoginResult) {
	t.Helper()
	anon, err := api.New(srv.URL+"/api/v1", 5*time.Second, nil, nil)
	require.NoError(t, err)
	res, err := anon.Login(context.Background(), api.Credentials{Username: username})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	return anon.WithToken(res.Token), res
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestHealthz(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoomsREST(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	alice, aliceLogin := login(t, srv, "alice")
	bob, _ := login(t, srv, "bob")

	me, err := alice.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, aliceLogin.User, me)

	created, err := alice.CreateRoom(ctx, api.CreateRoom{Name: "scrims"})
	require.NoError(t, err)
	assert.Len(t, created.ID, 6)
	assert.Equal(t, me.ID, created.OwnerID)
	assert.Equal(t, protocol.RoomWaiting, created.Status)
	assert.Len(t, created.Teams, 2)

	rooms, err := bob.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "scrims", rooms[0].Name)

	detail, err := bob.RoomDetail(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, detail.ID)

	_, err = bob.RoomDetail(ctx, "NOPE00")
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	err = bob.StartGame(ctx, created.ID)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	updated, err := alice.UpdateRoomSettings(ctx, created.ID, protocol.RoomSettings{Capacity: 6, PickMode: "captains", TeamCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, updated.Settings.Capacity)

	_, err = alice.UpdateRoomSettings(ctx, created.ID, protocol.RoomSettings{Capacity: 99, PickMode: "random", TeamCount: 2})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	// posting to a room requires being in it
	_, err = bob.PostRoomMessage(ctx, created.ID, protocol.SendMessage{Content: "hi"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestUnauthorized(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	var hits int
	c, err := api.New(srv.URL+"/api/v1", 5*time.Second, func() string { return "garbage" }, nil)
	require.NoError(t, err)
	c.OnUnauthorized = func() { hits++ }

	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Equal(t, 1, hits)

	d := &transport.WSDialer{URL: wsURL(srv)}
	_, err = d.Dial(ctx, "garbage")
	assert.ErrorIs(t, err, transport.ErrAuthRejected)
}

func TestLobbyChatDedupesSocketAndREST(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	alice, _ := login(t, srv, "alice")

	in := protocol.SendMessage{Content: "gg", Type: "text", ClientMsgID: "c-1"}
	first, err := alice.PostLobbyMessage(ctx, in)
	require.NoError(t, err)
	second, err := alice.PostLobbyMessage(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	msgs, err := alice.LobbyMessages(ctx, api.HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestLobbyHistoryPages(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	alice, res := login(t, srv, "alice")

	for _, text := range []string{"one", "two", "three"} {
		_, err := alice.PostLobbyMessage(ctx, protocol.SendMessage{Content: text, Type: "text"})
		require.NoError(t, err)
		// distinct server timestamps
		time.Sleep(2 * time.Millisecond)
	}
	all, err := alice.LobbyMessages(ctx, api.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	newest, err := alice.LobbyMessages(ctx, api.HistoryQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, "three", newest[0].Content)

	older, err := alice.LobbyMessages(ctx, api.HistoryQuery{Before: all[2].Time})
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "one", older[0].Content)
	assert.Equal(t, "two", older[1].Content)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/lobby/chat?before=yesterday", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// newSession connects a real session to srv as username.
func newSession(t *testing.T, srv *httptest.Server, username string) (*session.Session, *api.Client, api.LoginResult) {
	t.Helper()
	client, res := login(t, srv, username)
	s := session.New(context.Background(), session.Options{
		Dialer:         &transport.WSDialer{URL: wsURL(srv)},
		API:            client,
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 5 * time.Second,
		Reconnect:      session.ReconnectPolicy{Kind: session.BackoffFixed, Delay: 50 * time.Millisecond, MaxAttempts: 1},
	})
	t.Cleanup(s.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.Connect(ctx, res.Token)
	require.NoError(t, err)
	return s, client, res
}

// waitJoined waits for the server to acknowledge s's membership of roomID,
// or of the lobby when roomID is empty.
func waitJoined(t *testing.T, s *session.Session, roomID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		ms, err := s.Memberships(context.Background())
		if err != nil {
			return false
		}
		for _, m := range ms {
			if m.RoomID == roomID && m.Status == session.Joined {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSessionEndToEnd(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice, aliceAPI, aliceLogin := newSession(t, srv, "alice")
	bob, _, bobLogin := newSession(t, srv, "bob")

	status, err := alice.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Connected, status.State)
	assert.Equal(t, aliceLogin.User.ID, status.UserID)

	// lobby chat reaches the other session once
	require.NoError(t, alice.EnterLobby(ctx))
	require.NoError(t, bob.EnterLobby(ctx))
	waitJoined(t, alice, "")
	waitJoined(t, bob, "")
	_, err = alice.SendMessage(ctx, protocol.ChannelLobby, "anyone for inhouses?")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs, err := bob.Timeline(ctx, protocol.ChannelLobby)
		return err == nil && len(msgs) == 1 && msgs[0].Content == "anyone for inhouses?"
	}, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		msgs, err := alice.Timeline(ctx, protocol.ChannelLobby)
		return err == nil && len(msgs) == 1 && !msgs[0].Pending && msgs[0].ID != ""
	}, 3*time.Second, 20*time.Millisecond)

	// both enter a room; the owner's cache follows the roster
	created, err := aliceAPI.CreateRoom(ctx, api.CreateRoom{Name: "scrims"})
	require.NoError(t, err)
	require.NoError(t, alice.EnterRoom(ctx, created.ID))
	require.NoError(t, bob.EnterRoom(ctx, created.ID))
	waitJoined(t, alice, created.ID)
	waitJoined(t, bob, created.ID)

	require.Eventually(t, func() bool {
		r, ok, err := alice.Room(ctx)
		return err == nil && ok && len(r.Players) == 2
	}, 3*time.Second, 20*time.Millisecond)

	events, stop, err := bob.Subscribe(ctx, 16)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, aliceAPI.KickPlayer(ctx, created.ID, bobLogin.User.ID))

	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "subscription closed")
			if ev.Kind != session.KindKicked {
				continue
			}
			assert.Equal(t, created.ID, ev.RoomID)
			assert.True(t, errors.Is(ev.Err, session.ErrKicked))
			return
		case <-ctx.Done():
			t.Fatal("kicked event never arrived")
		}
	}
}
