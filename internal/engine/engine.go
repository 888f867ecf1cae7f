// Package engine is the pure room reducer used by the dev lobby server:
// Apply(state, command) returns the events to broadcast and the next state.
package engine

import (
	"errors"
	"slices"
	"time"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

var ErrNotOwner = errors.New("only the room owner can do that")
var ErrNotInRoom = errors.New("user is not in the room")
var ErrAlreadyInRoom = errors.New("user is already in the room")
var ErrWrongStatus = errors.New("not allowed in the current room status")
var ErrInvalidSettings = errors.New("invalid room settings")
var ErrUnknownTeam = errors.New("unknown team")
var ErrVoiceOff = errors.New("voice is not enabled")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Voice struct {
	Enabled bool
	Muted   bool
}

// State is everything the server knows about one room. Ready and Voice are
// keyed by user id and only hold users in the room.
type State struct {
	Room  protocol.RoomSnapshot
	Ready map[string]bool
	Voice map[string]Voice
}

type CommandType string

const (
	CmdJoin           CommandType = "Join"
	CmdLeave          CommandType = "Leave"
	CmdKick           CommandType = "Kick"
	CmdUpdateSettings CommandType = "UpdateSettings"
	CmdAssignTeam     CommandType = "AssignTeam"
	CmdStartGame      CommandType = "StartGame"
	CmdEndGame        CommandType = "EndGame"
	CmdSetReady       CommandType = "SetReady"
	CmdVoiceStart     CommandType = "VoiceStart"
	CmdVoiceEnd       CommandType = "VoiceEnd"
	CmdVoiceMute      CommandType = "VoiceMute"
)

/*
	CmdJoin           -> playerJoined (team picked by balance, spectator when full)
	CmdLeave          -> playerLeft (ownership moves to the oldest player)
	CmdKick           -> userKicked
	CmdUpdateSettings -> settingsChanged
	CmdAssignTeam     -> teamAssigned
	CmdStartGame      -> gameStarted
	CmdEndGame        -> gameEnded
	CmdSetReady       -> playerReady
	CmdVoice*         -> voiceStarted | voiceEnded | voiceMuted
*/

// Command is issued by ActorID. UserID is the target for Kick and
// AssignTeam. At stamps join times.
type Command struct {
	Type     CommandType
	ActorID  string
	Username string
	UserID   string
	TeamID   int
	Name     string
	Settings protocol.RoomSettings
	Ready    bool
	Muted    bool
	At       time.Time
}

// EventType values are the realtime event names the server broadcasts.
type EventType string

const (
	EvtPlayerJoined    EventType = protocol.EvtPlayerJoined
	EvtPlayerLeft      EventType = protocol.EvtPlayerLeft
	EvtUserKicked      EventType = protocol.EvtUserKicked
	EvtSettingsChanged EventType = protocol.EvtSettingsChanged
	EvtTeamAssigned    EventType = protocol.EvtTeamAssigned
	EvtGameStarted     EventType = protocol.EvtGameStarted
	EvtGameEnded       EventType = protocol.EvtGameEnded
	EvtPlayerReady     EventType = protocol.EvtPlayerReady
	EvtVoiceStarted    EventType = protocol.EvtVoiceStarted
	EvtVoiceEnded      EventType = protocol.EvtVoiceEnded
	EvtVoiceMuted      EventType = protocol.EvtVoiceMuted
)

type Event struct {
	Type      EventType
	UserID    string
	Player    protocol.Player
	Spectator bool
	TeamID    int
	IsCaptain bool
	Name      string
	Settings  protocol.RoomSettings
	Status    protocol.RoomStatus
	Ready     bool
	Muted     bool
}

// Roster events change who is in the room and carry a room sequence number
// on the wire. Presence events do not.
func (e Event) Roster() bool {
	switch e.Type {
	case EvtPlayerReady, EvtVoiceStarted, EvtVoiceEnded, EvtVoiceMuted:
		return false
	}
	return true
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s.Clone()
	room := &newState.Room

	switch cmd.Type {
	case CmdJoin:
		if isMember(s.Room, cmd.ActorID) {
			return nil, s, ErrAlreadyInRoom
		}
		p := protocol.Player{UserID: cmd.ActorID, Username: cmd.Username, JoinedAt: cmd.At}
		spectator := len(room.Players) >= room.Settings.Capacity || room.Status != protocol.RoomWaiting
		if spectator {
			room.Spectators = append(room.Spectators, p)
		} else {
			p.TeamID = nextTeam(*room)
			room.Players = append(room.Players, p)
		}
		if room.OwnerID == "" {
			room.OwnerID = cmd.ActorID
		}
		return []Event{{Type: EvtPlayerJoined, UserID: p.UserID, Player: p, Spectator: spectator}}, newState, nil

	case CmdLeave:
		if !isMember(s.Room, cmd.ActorID) {
			return nil, s, ErrNotInRoom
		}
		removeMember(&newState, cmd.ActorID)
		return []Event{{Type: EvtPlayerLeft, UserID: cmd.ActorID}}, newState, nil

	case CmdKick:
		if s.Room.OwnerID != cmd.ActorID {
			return nil, s, ErrNotOwner
		}
		if cmd.UserID == cmd.ActorID || !isMember(s.Room, cmd.UserID) {
			return nil, s, ErrNotInRoom
		}
		removeMember(&newState, cmd.UserID)
		return []Event{{Type: EvtUserKicked, UserID: cmd.UserID}}, newState, nil

	case CmdUpdateSettings:
		if s.Room.OwnerID != cmd.ActorID {
			return nil, s, ErrNotOwner
		}
		if s.Room.Status != protocol.RoomWaiting {
			return nil, s, ErrWrongStatus
		}
		if !validSettings(cmd.Settings, len(s.Room.Players)) {
			return nil, s, ErrInvalidSettings
		}
		room.Settings = cmd.Settings
		room.Teams = teamsFor(cmd.Settings.TeamCount)
		if cmd.Name != "" {
			room.Name = cmd.Name
		}
		return []Event{{Type: EvtSettingsChanged, Name: cmd.Name, Settings: cmd.Settings}}, newState, nil

	case CmdAssignTeam:
		if s.Room.OwnerID != cmd.ActorID {
			return nil, s, ErrNotOwner
		}
		if cmd.TeamID < 1 || cmd.TeamID > s.Room.Settings.TeamCount {
			return nil, s, ErrUnknownTeam
		}
		i := slices.IndexFunc(room.Players, func(p protocol.Player) bool { return p.UserID == cmd.UserID })
		if i < 0 {
			return nil, s, ErrNotInRoom
		}
		room.Players[i].TeamID = cmd.TeamID
		room.Players[i].IsCaptain = false
		return []Event{{Type: EvtTeamAssigned, UserID: cmd.UserID, TeamID: cmd.TeamID}}, newState, nil

	case CmdStartGame:
		if s.Room.OwnerID != cmd.ActorID {
			return nil, s, ErrNotOwner
		}
		if s.Room.Status != protocol.RoomWaiting {
			return nil, s, ErrWrongStatus
		}
		room.Status = protocol.RoomInProgress
		if room.Settings.PickMode == PickCaptains {
			room.Status = protocol.RoomPicking
		}
		clear(newState.Ready)
		return []Event{{Type: EvtGameStarted, Status: room.Status}}, newState, nil

	case CmdEndGame:
		if s.Room.OwnerID != cmd.ActorID {
			return nil, s, ErrNotOwner
		}
		if s.Room.Status != protocol.RoomInProgress && s.Room.Status != protocol.RoomPicking {
			return nil, s, ErrWrongStatus
		}
		room.Status = protocol.RoomEnded
		return []Event{{Type: EvtGameEnded, Status: room.Status}}, newState, nil

	case CmdSetReady:
		if _, ok := s.Room.Player(cmd.ActorID); !ok {
			return nil, s, ErrNotInRoom
		}
		if s.Room.Status != protocol.RoomWaiting {
			return nil, s, ErrWrongStatus
		}
		if cmd.Ready {
			newState.Ready[cmd.ActorID] = true
		} else {
			delete(newState.Ready, cmd.ActorID)
		}
		return []Event{{Type: EvtPlayerReady, UserID: cmd.ActorID, Ready: cmd.Ready}}, newState, nil

	case CmdVoiceStart, CmdVoiceEnd, CmdVoiceMute:
		return applyVoice(s, newState, cmd)

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyVoice(s, newState State, cmd Command) ([]Event, State, error) {
	if !isMember(s.Room, cmd.ActorID) {
		return nil, s, ErrNotInRoom
	}
	cur := s.Voice[cmd.ActorID]
	switch cmd.Type {
	case CmdVoiceStart:
		newState.Voice[cmd.ActorID] = Voice{Enabled: true}
		return []Event{{Type: EvtVoiceStarted, UserID: cmd.ActorID}}, newState, nil
	case CmdVoiceEnd:
		delete(newState.Voice, cmd.ActorID)
		return []Event{{Type: EvtVoiceEnded, UserID: cmd.ActorID}}, newState, nil
	default:
		if !cur.Enabled {
			return nil, s, ErrVoiceOff
		}
		newState.Voice[cmd.ActorID] = Voice{Enabled: true, Muted: cmd.Muted}
		return []Event{{Type: EvtVoiceMuted, UserID: cmd.ActorID, Muted: cmd.Muted}}, newState, nil
	}
}

// Reduce replays events onto an initial state. Apply and Reduce agree: the
// state Apply returns is Reduce(previous, events).
func Reduce(s State, events []Event) State {
	s = s.Clone()
	for _, e := range events {
		switch e.Type {
		case EvtPlayerJoined:
			if e.Spectator {
				s.Room.Spectators = append(s.Room.Spectators, e.Player)
			} else {
				s.Room.Players = append(s.Room.Players, e.Player)
			}
			if s.Room.OwnerID == "" {
				s.Room.OwnerID = e.UserID
			}
		case EvtPlayerLeft, EvtUserKicked:
			removeMember(&s, e.UserID)
		case EvtSettingsChanged:
			s.Room.Settings = e.Settings
			s.Room.Teams = teamsFor(e.Settings.TeamCount)
			if e.Name != "" {
				s.Room.Name = e.Name
			}
		case EvtTeamAssigned:
			for i := range s.Room.Players {
				if s.Room.Players[i].UserID == e.UserID {
					s.Room.Players[i].TeamID = e.TeamID
					s.Room.Players[i].IsCaptain = e.IsCaptain
				}
			}
		case EvtGameStarted:
			s.Room.Status = e.Status
			clear(s.Ready)
		case EvtGameEnded:
			s.Room.Status = e.Status
		case EvtPlayerReady:
			if e.Ready {
				s.Ready[e.UserID] = true
			} else {
				delete(s.Ready, e.UserID)
			}
		case EvtVoiceStarted:
			s.Voice[e.UserID] = Voice{Enabled: true}
		case EvtVoiceEnded:
			delete(s.Voice, e.UserID)
		case EvtVoiceMuted:
			s.Voice[e.UserID] = Voice{Enabled: true, Muted: e.Muted}
		}
	}
	return s
}

func isMember(r protocol.RoomSnapshot, uid string) bool {
	in := func(p protocol.Player) bool { return p.UserID == uid }
	return slices.ContainsFunc(r.Players, in) || slices.ContainsFunc(r.Spectators, in)
}

func removeMember(s *State, uid string) {
	drop := func(p protocol.Player) bool { return p.UserID == uid }
	s.Room.Players = slices.DeleteFunc(s.Room.Players, drop)
	s.Room.Spectators = slices.DeleteFunc(s.Room.Spectators, drop)
	delete(s.Ready, uid)
	delete(s.Voice, uid)
	if s.Room.OwnerID != uid {
		return
	}
	s.Room.OwnerID = ""
	if len(s.Room.Players) > 0 {
		s.Room.OwnerID = s.Room.Players[0].UserID
	}
}

func validSettings(st protocol.RoomSettings, players int) bool {
	if st.Capacity < 2 || st.Capacity > MaxCapacity || st.Capacity < players {
		return false
	}
	if st.TeamCount < 1 || st.TeamCount > st.Capacity {
		return false
	}
	switch st.PickMode {
	case PickRandom, PickCaptains, PickManual:
		return true
	}
	return false
}
