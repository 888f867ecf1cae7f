package room

import (
	"sync"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

// Client is one realtime connection as seen by the hub and rooms. Frames
// queue on an outbox drained by the connection's writer. A client that
// falls behind is closed; the writer sees Done and ends the connection.
type Client struct {
	ID   string
	User protocol.User

	out  chan protocol.Envelope
	done chan struct{}
	once sync.Once
}

func NewClient(id string, user protocol.User, buf int) *Client {
	return &Client{
		ID:   id,
		User: user,
		out:  make(chan protocol.Envelope, max(buf, 1)),
		done: make(chan struct{}),
	}
}

// Send queues env without blocking. It reports false when the client is
// closed or was closed because its outbox is full.
func (c *Client) Send(env protocol.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- env:
		return true
	default:
		// Client is slow/full - drop them.
		c.Close()
		return false
	}
}

func (c *Client) Out() <-chan protocol.Envelope { return c.out }

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() { c.once.Do(func() { close(c.done) }) }
