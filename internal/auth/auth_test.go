package auth

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/lol-lobby-client/internal/api"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

func TestCheckExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		token string
		want  error
	}{
		{name: "future", token: signed(t, now.Add(time.Hour))},
		{name: "past", token: signed(t, now.Add(-time.Minute)), want: ErrExpired},
		{name: "exactly now", token: signed(t, now), want: ErrExpired},
		{name: "opaque token", token: "not-a-jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CheckExpiry(tc.token, now))
		})
	}
}

func TestValidate_MissingAndExpired(t *testing.T) {
	var calls atomic.Int32
	v := NewValidator(func(ctx context.Context, token string) (protocol.User, error) {
		calls.Add(1)
		return protocol.User{ID: "u1"}, nil
	}, time.Second, nil)

	_, err := v.Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = v.Validate(context.Background(), signed(t, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrExpired)

	assert.Zero(t, calls.Load(), "identity must not be called")
}

func TestValidate_SharesConcurrentCalls(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	v := NewValidator(func(ctx context.Context, token string) (protocol.User, error) {
		calls.Add(1)
		<-release
		return protocol.User{ID: "u1", Username: "faker"}, nil
	}, time.Second, nil)

	const n = 8
	var wg sync.WaitGroup
	users := make([]protocol.User, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			users[i], errs[i] = v.Validate(context.Background(), "tok")
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	// let the other callers join the in-flight call
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, "faker", users[i].Username)
	}
}

func TestValidate_Unauthorized(t *testing.T) {
	v := NewValidator(func(ctx context.Context, token string) (protocol.User, error) {
		return protocol.User{}, &api.Error{StatusCode: 401, Message: "bad token"}
	}, time.Second, nil)

	_, err := v.Validate(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrUnauthorized))
}

func TestValidate_CallerContext(t *testing.T) {
	v := NewValidator(func(ctx context.Context, token string) (protocol.User, error) {
		<-ctx.Done()
		return protocol.User{}, ctx.Err()
	}, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := v.Validate(ctx, "tok")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStores(t *testing.T) {
	stores := map[string]Store{
		"memory": &MemoryStore{},
		"file":   FileStore{Path: filepath.Join(t.TempDir(), "nested", "token")},
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load()
			assert.ErrorIs(t, err, ErrNoToken)

			require.NoError(t, s.Save("tok"))
			got, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, "tok", got)

			require.NoError(t, s.Clear())
			require.NoError(t, s.Clear())
			_, err = s.Load()
			assert.ErrorIs(t, err, ErrNoToken)
		})
	}
}
