// Package store persists chat messages for the dev lobby server.
//
// A client sends each message twice: once over the realtime connection and
// once through the REST API. Save deduplicates on (user, client message id)
// so both paths resolve to the same stored message.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

var ErrEmptyContent = errors.New("store: empty message")

// HistoryLimit caps how many messages List returns.
const HistoryLimit = 100

// Page selects history. A zero Before means no upper bound and a Limit
// outside 1..HistoryLimit means HistoryLimit.
type Page struct {
	Before time.Time
	Limit  int
}

type Store interface {
	// Save stores m and reports whether it is new. An existing message with
	// the same user and client message id is returned unchanged.
	Save(ctx context.Context, m protocol.Message) (protocol.Message, bool, error)
	// List returns the latest page of a room's messages older than
	// p.Before, oldest first. An empty roomID lists the lobby.
	List(ctx context.Context, roomID string, p Page) ([]protocol.Message, error)
	Close() error
}

// prepare assigns the server id and time.
func prepare(m protocol.Message, now time.Time) (protocol.Message, error) {
	if m.Content == "" {
		return m, ErrEmptyContent
	}
	m.ID = uuid.NewString()
	m.Time = now.UTC()
	m.Pending = false
	return m, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > HistoryLimit {
		return HistoryLimit
	}
	return limit
}
