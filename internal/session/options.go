package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/api"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/transport"
)

// API is the slice of the REST client the session calls. Errors matching
// api.ErrUnauthorized are surfaced as unauthorized status events.
type API interface {
	RoomDetail(ctx context.Context, roomID string) (protocol.RoomSnapshot, error)
	RoomMessages(ctx context.Context, roomID string, q api.HistoryQuery) ([]protocol.Message, error)
	LobbyMessages(ctx context.Context, q api.HistoryQuery) ([]protocol.Message, error)
	PostRoomMessage(ctx context.Context, roomID string, m protocol.SendMessage) (protocol.Message, error)
	PostLobbyMessage(ctx context.Context, m protocol.SendMessage) (protocol.Message, error)
}

type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// ReconnectPolicy bounds automatic reconnection. Zero fields take the
// values of DefaultReconnectPolicy.
type ReconnectPolicy struct {
	Kind        BackoffKind
	Delay       time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Kind:        BackoffFixed,
		Delay:       time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// newBackOff returns a policy that yields MaxAttempts delays and then
// backoff.Stop.
func (p ReconnectPolicy) newBackOff() backoff.BackOff {
	var b backoff.BackOff
	switch p.Kind {
	case BackoffExponential:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Delay
		if p.MaxDelay > 0 {
			eb.MaxInterval = p.MaxDelay
		}
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	default:
		b = backoff.NewConstantBackOff(p.Delay)
	}
	return backoff.WithMaxRetries(b, uint64(max(p.MaxAttempts, 0)))
}

type Options struct {
	Dialer transport.Dialer
	// API may be nil; fetches and chat persistence are then skipped.
	API    API
	Logger *zap.Logger
	// Production silences programming-error warnings such as replaced
	// handlers.
	Production     bool
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	Reconnect      ReconnectPolicy
	// Now is the clock used to stamp pushes and fetches.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.Reconnect == (ReconnectPolicy{}) {
		o.Reconnect = DefaultReconnectPolicy()
	}
	if o.Reconnect.Delay <= 0 {
		o.Reconnect.Delay = time.Second
	}
	if o.Reconnect.MaxAttempts <= 0 {
		o.Reconnect.MaxAttempts = DefaultReconnectPolicy().MaxAttempts
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
