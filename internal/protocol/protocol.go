package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the frame exchanged over the realtime connection in both
// directions: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope. A nil payload produces an
// envelope without data.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// MustEnvelope is NewEnvelope for payloads that cannot fail to marshal.
func MustEnvelope(event string, payload any) Envelope {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Event, err)
	}
	return nil
}

// Client -> Server
const (
	EvtJoinLobby  = "joinLobby"
	EvtLeaveLobby = "leaveLobby"
	EvtJoinRoom   = "joinRoom"
	EvtLeaveRoom  = "leaveRoom"
)

// Both directions
const (
	EvtLobbyMessage = "lobbyMessage"
	EvtRoomMessage  = "roomMessage"
	EvtVoiceStarted = "voiceStarted"
	EvtVoiceEnded   = "voiceEnded"
	EvtVoiceMuted   = "voiceMuted"
	EvtPlayerReady  = "playerReady"
)

// Server -> Client
const (
	EvtConnect         = "connect"
	EvtError           = "error"
	EvtLobbyJoined     = "lobbyJoined"
	EvtLobbyLeft       = "lobbyLeft"
	EvtRoomJoined      = "roomJoined"
	EvtRoomLeft        = "roomLeft"
	EvtUserKicked      = "userKicked"
	EvtPlayerJoined    = "playerJoined"
	EvtPlayerLeft      = "playerLeft"
	EvtSettingsChanged = "settingsChanged"
	EvtTeamAssigned    = "teamAssigned"
	EvtGameStarted     = "gameStarted"
	EvtGameEnded       = "gameEnded"
)

// ConnectAck is the first frame the server sends after accepting a
// connection.
type ConnectAck struct {
	SocketID string `json:"socketId,omitempty"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Error codes carried by ErrorPayload. CodeUnauthorized means the
// connection's credential is no longer accepted and the server is about to
// close it.
const (
	CodeBadPayload   = "BAD_PAYLOAD"
	CodeUnknownEvent = "UNKNOWN_EVENT"
	CodeNotInRoom    = "NOT_IN_ROOM"
	CodeRoomNotFound = "ROOM_NOT_FOUND"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeEmptyMessage = "EMPTY_MESSAGE"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInternal     = "INTERNAL"
)

type RoomRef struct {
	RoomID string `json:"roomId"`
}

// SendMessage is the outbound chat payload for both lobbyMessage and
// roomMessage. RoomID is empty for the lobby.
type SendMessage struct {
	RoomID      string `json:"roomId,omitempty"`
	Content     string `json:"content"`
	Type        string `json:"type"`
	TeamID      int    `json:"teamId,omitempty"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

type VoiceMute struct {
	RoomID  string `json:"roomId"`
	IsMuted bool   `json:"isMuted"`
}

type ReadyRequest struct {
	RoomID string `json:"roomId"`
	Ready  bool   `json:"ready"`
}

// VoiceEvent is broadcast for voiceStarted, voiceEnded and voiceMuted.
type VoiceEvent struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	IsMuted bool   `json:"isMuted,omitempty"`
}

type ReadyEvent struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Ready  bool   `json:"ready"`
}
