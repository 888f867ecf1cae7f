// Package memtransport is an in-memory transport for tests. Every dial
// returns a Conn the test drives directly: push frames, drop it, inspect
// what the client wrote.
package memtransport

import (
	"context"
	"io"
	"sync"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/transport"
)

type Dialer struct {
	UserID   string
	Username string
	// NoAck suppresses the connect frame on new connections.
	NoAck bool

	mu    sync.Mutex
	fails []error
	hang  int
	conns []*Conn
	creds []string

	// Dialed receives every successfully dialed connection.
	Dialed chan *Conn
}

func NewDialer(userID string) *Dialer {
	return &Dialer{
		UserID:   userID,
		Username: "user-" + userID,
		Dialed:   make(chan *Conn, 32),
	}
}

// FailNext makes the next len(errs) dials fail with the given errors in order.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fails = append(d.fails, errs...)
}

// HangNext makes the next n dials block until their context ends.
func (d *Dialer) HangNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hang += n
}

func (d *Dialer) Dial(ctx context.Context, credential string) (transport.Conn, error) {
	d.mu.Lock()
	d.creds = append(d.creds, credential)
	if d.hang > 0 {
		d.hang--
		d.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if len(d.fails) > 0 {
		err := d.fails[0]
		d.fails = d.fails[1:]
		d.mu.Unlock()
		return nil, err
	}
	c := newConn(credential)
	d.conns = append(d.conns, c)
	noAck := d.NoAck
	d.mu.Unlock()

	if !noAck {
		c.Push(protocol.EvtConnect, protocol.ConnectAck{SocketID: "sock", UserID: d.UserID, Username: d.Username})
	}
	select {
	case d.Dialed <- c:
	default:
	}
	return c, nil
}

// Dials is the number of dial attempts so far, successful or not.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.creds)
}

// Credentials lists the credential of every dial attempt in order.
func (d *Dialer) Credentials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.creds...)
}

// Last returns the most recent successful connection.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type Conn struct {
	Credential string

	in   chan protocol.Envelope
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	err    error
	sent   []protocol.Envelope
	Writes chan protocol.Envelope
}

func newConn(credential string) *Conn {
	return &Conn{
		Credential: credential,
		in:         make(chan protocol.Envelope, 64),
		done:       make(chan struct{}),
		Writes:     make(chan protocol.Envelope, 256),
	}
}

// Push queues a server frame for the client to read.
func (c *Conn) Push(event string, payload any) {
	select {
	case c.in <- protocol.MustEnvelope(event, payload):
	case <-c.done:
	}
}

// Drop simulates a transport loss. Pending frames are discarded.
func (c *Conn) Drop() { c.closeWith(io.ErrUnexpectedEOF) }

func (c *Conn) Close() error {
	c.closeWith(transport.ErrClosed)
	return nil
}

func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) closeWith(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Conn) Read(ctx context.Context) (protocol.Envelope, error) {
	// a closed conn never yields buffered frames
	select {
	case <-c.done:
		return protocol.Envelope{}, c.closeErr()
	default:
	}
	select {
	case env := <-c.in:
		return env, nil
	case <-c.done:
		return protocol.Envelope{}, c.closeErr()
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

func (c *Conn) Write(ctx context.Context, env protocol.Envelope) error {
	select {
	case <-c.done:
		return c.closeErr()
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, env)
	c.mu.Unlock()
	select {
	case c.Writes <- env:
	default:
	}
	return nil
}

// Sent returns every frame the client wrote.
func (c *Conn) Sent() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.sent...)
}

// SentEvents returns the event names of every frame the client wrote.
func (c *Conn) SentEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, env := range c.sent {
		out = append(out, env.Event)
	}
	return out
}

func (c *Conn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
