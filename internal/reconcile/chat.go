package reconcile

import (
	"slices"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

// Timeline is one channel's messages ordered by time and deduplicated by
// server id. Optimistic entries are identified by their client message id
// until the server echo replaces them.
type Timeline struct {
	msgs []protocol.Message
	ids  map[string]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{ids: make(map[string]struct{})}
}

// AppendLocal inserts an optimistic entry for a message that has been sent
// but not yet echoed.
func (t *Timeline) AppendLocal(m protocol.Message) error {
	if m.ClientMsgID == "" {
		return warn(ReasonInvalid, "local", "missing client message id")
	}
	if t.indexOfClient(m.ClientMsgID) >= 0 {
		return warn(ReasonDuplicate, "local", m.ClientMsgID)
	}
	m.Pending = true
	t.insert(m)
	return nil
}

// ApplyPush inserts a server message. A message whose id is already present
// is a no-op; one that carries the client id of a pending entry replaces it.
func (t *Timeline) ApplyPush(m protocol.Message) error {
	if m.ID == "" {
		return warn(ReasonInvalid, "message", "missing id")
	}
	if _, ok := t.ids[m.ID]; ok {
		return warn(ReasonDuplicate, "message", m.ID)
	}
	if m.ClientMsgID != "" {
		if i := t.indexOfClient(m.ClientMsgID); i >= 0 {
			if !t.msgs[i].Pending {
				return warn(ReasonDuplicate, "message", "client id "+m.ClientMsgID)
			}
			t.msgs = slices.Delete(t.msgs, i, i+1)
		}
	}
	m.Pending = false
	t.ids[m.ID] = struct{}{}
	t.insert(m)
	return nil
}

// ApplyFetch merges a page of history. Messages already present are skipped.
func (t *Timeline) ApplyFetch(history []protocol.Message) int {
	added := 0
	for _, m := range history {
		if err := t.ApplyPush(m); err == nil {
			added++
		}
	}
	return added
}

// Remove drops a pending entry whose send failed.
func (t *Timeline) Remove(clientMsgID string) bool {
	i := t.indexOfClient(clientMsgID)
	if i < 0 || !t.msgs[i].Pending {
		return false
	}
	t.msgs = slices.Delete(t.msgs, i, i+1)
	return true
}

func (t *Timeline) Messages() []protocol.Message {
	return slices.Clone(t.msgs)
}

func (t *Timeline) Len() int { return len(t.msgs) }

func (t *Timeline) indexOfClient(clientMsgID string) int {
	return slices.IndexFunc(t.msgs, func(m protocol.Message) bool {
		return m.ClientMsgID == clientMsgID
	})
}

// insert keeps time order; equal times keep arrival order.
func (t *Timeline) insert(m protocol.Message) {
	i := len(t.msgs)
	for j := len(t.msgs) - 1; j >= 0; j-- {
		if !t.msgs[j].Time.After(m.Time) {
			break
		}
		i = j
	}
	t.msgs = slices.Insert(t.msgs, i, m)
}

// Chat owns the timelines of every channel the client can see.
type Chat struct {
	timelines map[protocol.Channel]*Timeline
}

func NewChat() *Chat {
	return &Chat{timelines: make(map[protocol.Channel]*Timeline)}
}

func (c *Chat) timeline(ch protocol.Channel) *Timeline {
	t, ok := c.timelines[ch]
	if !ok {
		t = NewTimeline()
		c.timelines[ch] = t
	}
	return t
}

func (c *Chat) AppendLocal(ch protocol.Channel, m protocol.Message) error {
	return c.timeline(ch).AppendLocal(m)
}

func (c *Chat) ApplyPush(ch protocol.Channel, m protocol.Message) error {
	return c.timeline(ch).ApplyPush(m)
}

func (c *Chat) ApplyFetch(ch protocol.Channel, history []protocol.Message) int {
	return c.timeline(ch).ApplyFetch(history)
}

func (c *Chat) Remove(ch protocol.Channel, clientMsgID string) bool {
	t, ok := c.timelines[ch]
	return ok && t.Remove(clientMsgID)
}

func (c *Chat) Messages(ch protocol.Channel) []protocol.Message {
	t, ok := c.timelines[ch]
	if !ok {
		return nil
	}
	return t.Messages()
}

// ClearRoom discards the public and team timelines of the active room.
func (c *Chat) ClearRoom() {
	for ch := range c.timelines {
		if ch.InRoom() {
			delete(c.timelines, ch)
		}
	}
}

func (c *Chat) ClearLobby() { delete(c.timelines, protocol.ChannelLobby) }

func (c *Chat) Clear() { clear(c.timelines) }
