// Package transport carries protocol envelopes over a realtime connection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

var (
	// ErrAuthRejected means the server refused the credential.
	ErrAuthRejected = errors.New("transport: credential rejected")
	// ErrClosed is returned by a connection closed locally or with a normal
	// close frame.
	ErrClosed = errors.New("transport: connection closed")
)

// Conn is one established connection. Read must be called from a single
// goroutine; Write may be called concurrently with Read.
type Conn interface {
	Read(ctx context.Context) (protocol.Envelope, error)
	Write(ctx context.Context, env protocol.Envelope) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, credential string) (Conn, error)
}

// WSDialer dials the realtime endpoint over websocket. The credential is
// passed as the token query parameter.
type WSDialer struct {
	URL        string
	HTTPClient *http.Client
	ReadLimit  int64
}

func (d *WSDialer) Dial(ctx context.Context, credential string) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()

	c, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: http %d", ErrAuthRejected, resp.StatusCode)
		}
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

// Accept wraps the server side of an upgraded connection.
func Accept(c *websocket.Conn) Conn { return &wsConn{c: c} }

func (w *wsConn) Read(ctx context.Context) (protocol.Envelope, error) {
	var env protocol.Envelope
	if err := wsjson.Read(ctx, w.c, &env); err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return env, ErrClosed
		case websocket.StatusPolicyViolation:
			return env, fmt.Errorf("%w: %v", ErrAuthRejected, err)
		}
		return env, err
	}
	return env, nil
}

func (w *wsConn) Write(ctx context.Context, env protocol.Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, w.c, env)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "bye")
}
