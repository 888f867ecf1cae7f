package room

import (
	"github.com/DoyleJ11/lol-lobby-client/internal/engine"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

// envelope turns an engine event into its wire frame. Roster events carry
// the room sequence number current after the event.
func (r *Room) envelope(e engine.Event) protocol.Envelope {
	patch := protocol.RoomPatch{RoomID: r.id, Seq: r.seq, TS: r.now().UTC()}
	name := string(e.Type)

	switch e.Type {
	case engine.EvtPlayerJoined:
		return protocol.MustEnvelope(name, protocol.PlayerJoined{RoomPatch: patch, Player: e.Player, Spectator: e.Spectator})
	case engine.EvtPlayerLeft, engine.EvtUserKicked:
		return protocol.MustEnvelope(name, protocol.PlayerLeft{RoomPatch: patch, UserID: e.UserID})
	case engine.EvtSettingsChanged:
		return protocol.MustEnvelope(name, protocol.SettingsChanged{RoomPatch: patch, Name: e.Name, Settings: e.Settings})
	case engine.EvtTeamAssigned:
		return protocol.MustEnvelope(name, protocol.TeamAssigned{RoomPatch: patch, UserID: e.UserID, TeamID: e.TeamID, IsCaptain: e.IsCaptain})
	case engine.EvtGameStarted, engine.EvtGameEnded:
		return protocol.MustEnvelope(name, protocol.StatusChanged{RoomPatch: patch, Status: e.Status})
	case engine.EvtPlayerReady:
		return protocol.MustEnvelope(name, protocol.ReadyEvent{RoomID: r.id, UserID: e.UserID, Ready: e.Ready})
	default:
		return protocol.MustEnvelope(name, protocol.VoiceEvent{RoomID: r.id, UserID: e.UserID, IsMuted: e.Muted})
	}
}
