package session

import "fmt"

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type EventKind string

const (
	KindConnecting       EventKind = "connecting"
	KindConnect          EventKind = "connect"
	KindDisconnect       EventKind = "disconnect"
	KindReconnectAttempt EventKind = "reconnect_attempt"
	KindReconnectError   EventKind = "reconnect_error"
	KindReconnect        EventKind = "reconnect"
	KindReconnectFailed  EventKind = "reconnect_failed"
	KindError            EventKind = "error"
	// KindUnauthorized asks the owning context to re-authenticate or log
	// out. It follows a 401 from the API or a rejected credential.
	KindUnauthorized EventKind = "unauthorized"
	KindKicked       EventKind = "kicked"
)

// StatusEvent is emitted on every connection state transition and for
// session-level failures. Attempt is set for reconnection events.
type StatusEvent struct {
	Kind    EventKind
	State   State
	Epoch   uint64
	Attempt int
	RoomID  string
	Err     error
}

// Status is a point-in-time view of the connection.
type Status struct {
	State    State
	Epoch    uint64
	Attempt  int
	UserID   string
	Username string
	Err      error
}
