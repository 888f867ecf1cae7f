package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

type dedupeKey struct {
	userID      string
	clientMsgID string
}

// Memory keeps messages in process. It is the default when no database is
// configured.
type Memory struct {
	mu     sync.Mutex
	byRoom map[string][]protocol.Message
	seen   map[dedupeKey]protocol.Message
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byRoom: make(map[string][]protocol.Message),
		seen:   make(map[dedupeKey]protocol.Message),
		now:    time.Now,
	}
}

func (s *Memory) Save(ctx context.Context, m protocol.Message) (protocol.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Message{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupeKey{userID: m.UserID, clientMsgID: m.ClientMsgID}
	if m.ClientMsgID != "" {
		if prev, ok := s.seen[key]; ok {
			return prev, false, nil
		}
	}
	m, err := prepare(m, s.now())
	if err != nil {
		return protocol.Message{}, false, err
	}
	s.byRoom[m.RoomID] = append(s.byRoom[m.RoomID], m)
	if m.ClientMsgID != "" {
		s.seen[key] = m
	}
	return m, true, nil
}

func (s *Memory) List(ctx context.Context, roomID string, p Page) ([]protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.byRoom[roomID]
	if !p.Before.IsZero() {
		end, _ := slices.BinarySearchFunc(msgs, p.Before, func(m protocol.Message, t time.Time) int {
			return m.Time.Compare(t)
		})
		msgs = msgs[:end]
	}
	if n := clampLimit(p.Limit); len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return slices.Clone(msgs), nil
}

func (s *Memory) Close() error { return nil }
