package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Channel names a chat timeline: the lobby, a room's public chat, or one
// team's chat inside a room.
type Channel string

const (
	ChannelLobby  Channel = "lobby"
	ChannelPublic Channel = "public"
)

func TeamChannel(teamID int) Channel {
	return Channel(fmt.Sprintf("team-%d", teamID))
}

// TeamID returns the team number of a team-N channel.
func (c Channel) TeamID() (int, bool) {
	rest, ok := strings.CutPrefix(string(c), "team-")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// InRoom reports whether the channel is scoped to the active room.
func (c Channel) InRoom() bool {
	if c == ChannelPublic {
		return true
	}
	_, ok := c.TeamID()
	return ok
}

func (c Channel) Valid() bool {
	return c == ChannelLobby || c.InRoom()
}

// Message is a chat message. ID is assigned by the server; ClientMsgID is
// generated by the sender and echoed back so optimistic entries can be
// matched with their server copy.
type Message struct {
	ID          string    `json:"id"`
	ClientMsgID string    `json:"clientMsgId,omitempty"`
	RoomID      string    `json:"roomId,omitempty"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username,omitempty"`
	Content     string    `json:"content"`
	Type        string    `json:"type,omitempty"`
	TeamID      int       `json:"teamId,omitempty"`
	Time        time.Time `json:"time"`
	Pending     bool      `json:"-"`
}

// ChannelOf derives the timeline a received message belongs to.
func (m Message) ChannelOf() Channel {
	switch {
	case m.RoomID == "":
		return ChannelLobby
	case m.TeamID > 0:
		return TeamChannel(m.TeamID)
	default:
		return ChannelPublic
	}
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}
