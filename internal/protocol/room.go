package protocol

import (
	"slices"
	"time"
)

type RoomStatus string

const (
	RoomWaiting    RoomStatus = "waiting"
	RoomPicking    RoomStatus = "picking"
	RoomInProgress RoomStatus = "in-progress"
	RoomEnded      RoomStatus = "ended"
)

type Player struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	TeamID    int       `json:"teamId,omitempty"`
	IsCaptain bool      `json:"isCaptain,omitempty"`
	JoinedAt  time.Time `json:"joinedAt"`
}

type Team struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Side      string `json:"side,omitempty"`
	CaptainID string `json:"captainId,omitempty"`
}

type RoomSettings struct {
	Capacity  int    `json:"capacity"`
	PickMode  string `json:"pickMode"`
	TeamCount int    `json:"teamCount"`
}

// RoomSnapshot is the full state of one room as returned by the room detail
// endpoint. Players are ordered by join time.
type RoomSnapshot struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	OwnerID    string       `json:"ownerId"`
	Status     RoomStatus   `json:"status"`
	Players    []Player     `json:"players"`
	Teams      []Team       `json:"teams"`
	Spectators []Player     `json:"spectators"`
	Settings   RoomSettings `json:"settings"`
}

// Clone returns a deep copy so callers never share slices with cached state.
func (r RoomSnapshot) Clone() RoomSnapshot {
	out := r
	out.Players = slices.Clone(r.Players)
	out.Teams = slices.Clone(r.Teams)
	out.Spectators = slices.Clone(r.Spectators)
	return out
}

// Player returns the player with the given user id.
func (r RoomSnapshot) Player(userID string) (Player, bool) {
	for _, p := range r.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return Player{}, false
}

// RoomPatch is the common header of every incremental room push. Seq is
// assigned by the server per room and increases with every mutation.
type RoomPatch struct {
	RoomID string    `json:"roomId"`
	Seq    int64     `json:"seq"`
	TS     time.Time `json:"ts"`
}

type PlayerJoined struct {
	RoomPatch
	Player    Player `json:"player"`
	Spectator bool   `json:"spectator,omitempty"`
}

// PlayerLeft is used for both playerLeft and userKicked.
type PlayerLeft struct {
	RoomPatch
	UserID string `json:"userId"`
}

type SettingsChanged struct {
	RoomPatch
	Name     string       `json:"name,omitempty"`
	Settings RoomSettings `json:"settings"`
}

type TeamAssigned struct {
	RoomPatch
	UserID    string `json:"userId"`
	TeamID    int    `json:"teamId"`
	IsCaptain bool   `json:"isCaptain,omitempty"`
}

// StatusChanged is used for gameStarted and gameEnded.
type StatusChanged struct {
	RoomPatch
	Status RoomStatus `json:"status"`
}
