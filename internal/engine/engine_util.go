package engine

import (
	"maps"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

const (
	PickRandom   = "random"
	PickCaptains = "captains"
	PickManual   = "manual"

	MaxCapacity = 20
)

func DefaultSettings() protocol.RoomSettings {
	return protocol.RoomSettings{Capacity: 10, PickMode: PickRandom, TeamCount: 2}
}

// NewRoomState returns an empty waiting room. Invalid settings fall back to
// the defaults.
func NewRoomState(id, name, ownerID string, settings protocol.RoomSettings) State {
	if !validSettings(settings, 0) {
		settings = DefaultSettings()
	}
	return State{
		Room: protocol.RoomSnapshot{
			ID:         id,
			Name:       name,
			OwnerID:    ownerID,
			Status:     protocol.RoomWaiting,
			Players:    []protocol.Player{},
			Spectators: []protocol.Player{},
			Teams:      teamsFor(settings.TeamCount),
			Settings:   settings,
		},
		Ready: map[string]bool{},
		Voice: map[string]Voice{},
	}
}

// ValidateSettings reports ErrInvalidSettings for settings a room holding
// players cannot take.
func ValidateSettings(st protocol.RoomSettings, players int) error {
	if !validSettings(st, players) {
		return ErrInvalidSettings
	}
	return nil
}

func (s State) Clone() State {
	out := State{Room: s.Room.Clone(), Ready: maps.Clone(s.Ready), Voice: maps.Clone(s.Voice)}
	if out.Ready == nil {
		out.Ready = map[string]bool{}
	}
	if out.Voice == nil {
		out.Voice = map[string]Voice{}
	}
	return out
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
