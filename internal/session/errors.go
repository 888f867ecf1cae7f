package session

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

type ConnectErrorKind int

const (
	MissingCredential ConnectErrorKind = iota + 1
	AuthRejected
	Timeout
	TransportError
)

func (k ConnectErrorKind) String() string {
	switch k {
	case MissingCredential:
		return "missing credential"
	case AuthRejected:
		return "auth rejected"
	case Timeout:
		return "timeout"
	case TransportError:
		return "transport error"
	default:
		return fmt.Sprintf("ConnectErrorKind(%d)", int(k))
	}
}

// ConnectError is returned by Connect and Reconnect and carried on status
// events for failed reconnection attempts.
type ConnectError struct {
	Kind ConnectErrorKind
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return "connect: " + e.Kind.String()
	}
	return fmt.Sprintf("connect: %s: %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Is matches another *ConnectError of the same kind, so the sentinels below
// work with errors.Is.
func (e *ConnectError) Is(target error) bool {
	t, ok := target.(*ConnectError)
	return ok && t.Err == nil && t.Kind == e.Kind
}

type CommandErrorKind int

const (
	NotConnected CommandErrorKind = iota + 1
	NotInChannel
	AlreadyInChannel
)

func (k CommandErrorKind) String() string {
	switch k {
	case NotConnected:
		return "not connected"
	case NotInChannel:
		return "not in channel"
	case AlreadyInChannel:
		return "already in channel"
	default:
		return fmt.Sprintf("CommandErrorKind(%d)", int(k))
	}
}

// CommandError is returned by membership and chat commands. No local state
// is changed when a command fails with one.
type CommandError struct {
	Kind    CommandErrorKind
	Channel protocol.Channel
}

func (e *CommandError) Error() string {
	if e.Channel == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Channel)
}

func (e *CommandError) Is(target error) bool {
	t, ok := target.(*CommandError)
	return ok && t.Kind == e.Kind && (t.Channel == "" || t.Channel == e.Channel)
}

var (
	ErrMissingCredential = &ConnectError{Kind: MissingCredential}
	ErrAuthRejected      = &ConnectError{Kind: AuthRejected}
	ErrTimeout           = &ConnectError{Kind: Timeout}
	ErrTransport         = &ConnectError{Kind: TransportError}

	ErrNotConnected     = &CommandError{Kind: NotConnected}
	ErrNotInChannel     = &CommandError{Kind: NotInChannel}
	ErrAlreadyInChannel = &CommandError{Kind: AlreadyInChannel}

	// ErrClosed is returned by every method once the session is closed.
	ErrClosed = errors.New("session: closed")
	// ErrRetriesExhausted is the terminal error carried by the
	// reconnect_failed status event.
	ErrRetriesExhausted = errors.New("session: reconnection attempts exhausted")
	// ErrDisconnected fails a connect that was still in flight when
	// Disconnect was called.
	ErrDisconnected = errors.New("session: disconnected")
	// ErrSuperseded fails a connect replaced by a newer Connect or Reconnect.
	ErrSuperseded = errors.New("session: superseded by a newer connect")
	// ErrKicked is carried by the kicked status event.
	ErrKicked = errors.New("session: kicked from room")
	// ErrNoAPI is returned by LoadHistory when the session has no REST
	// client.
	ErrNoAPI = errors.New("session: no API configured")
)
