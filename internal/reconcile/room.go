package reconcile

import (
	"fmt"
	"slices"
	"time"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

// RoomEvent is a decoded incremental room push. At is the local receipt time
// and is what fetch merges compare against.
type RoomEvent struct {
	Kind      string
	Patch     protocol.RoomPatch
	Player    protocol.Player
	Spectator bool
	UserID    string
	TeamID    int
	IsCaptain bool
	Name      string
	Settings  protocol.RoomSettings
	Status    protocol.RoomStatus
	At        time.Time
}

// DecodeRoomEvent turns a room patch envelope into a RoomEvent.
func DecodeRoomEvent(env protocol.Envelope, at time.Time) (RoomEvent, error) {
	ev := RoomEvent{Kind: env.Event, At: at}
	switch env.Event {
	case protocol.EvtPlayerJoined:
		var p protocol.PlayerJoined
		if err := env.Decode(&p); err != nil {
			return ev, err
		}
		ev.Patch, ev.Player, ev.Spectator, ev.UserID = p.RoomPatch, p.Player, p.Spectator, p.Player.UserID
	case protocol.EvtPlayerLeft, protocol.EvtUserKicked:
		var p protocol.PlayerLeft
		if err := env.Decode(&p); err != nil {
			return ev, err
		}
		ev.Patch, ev.UserID = p.RoomPatch, p.UserID
	case protocol.EvtSettingsChanged:
		var p protocol.SettingsChanged
		if err := env.Decode(&p); err != nil {
			return ev, err
		}
		ev.Patch, ev.Name, ev.Settings = p.RoomPatch, p.Name, p.Settings
	case protocol.EvtTeamAssigned:
		var p protocol.TeamAssigned
		if err := env.Decode(&p); err != nil {
			return ev, err
		}
		ev.Patch, ev.UserID, ev.TeamID, ev.IsCaptain = p.RoomPatch, p.UserID, p.TeamID, p.IsCaptain
	case protocol.EvtGameStarted, protocol.EvtGameEnded:
		var p protocol.StatusChanged
		if err := env.Decode(&p); err != nil {
			return ev, err
		}
		ev.Patch, ev.Status = p.RoomPatch, p.Status
	default:
		return ev, fmt.Errorf("not a room event: %s", env.Event)
	}
	return ev, nil
}

const (
	fieldName     = "name"
	fieldSettings = "settings"
	fieldStatus   = "status"
	fieldOwner    = "owner"
)

type rosterMark struct {
	at        time.Time
	present   bool
	spectator bool
	player    protocol.Player
}

// Room holds the cached snapshot of the active room together with the
// ordering marker of the last applied push and per-field push stamps.
type Room struct {
	id      string
	snap    protocol.RoomSnapshot
	lastSeq int64
	lastTS  time.Time
	fields  map[string]time.Time
	roster  map[string]rosterMark
	teams   map[string]time.Time
}

func NewRoom(roomID string) *Room {
	return &Room{
		id:     roomID,
		snap:   protocol.RoomSnapshot{ID: roomID},
		fields: make(map[string]time.Time),
		roster: make(map[string]rosterMark),
		teams:  make(map[string]time.Time),
	}
}

func (r *Room) ID() string { return r.id }

// Snapshot returns a copy of the cached snapshot.
func (r *Room) Snapshot() protocol.RoomSnapshot { return r.snap.Clone() }

// LastSeq is the sequence number of the last applied push.
func (r *Room) LastSeq() int64 { return r.lastSeq }

// ApplyPush applies ev if it is not older than the last applied push.
func (r *Room) ApplyPush(ev RoomEvent) error {
	if ev.Patch.RoomID != "" && ev.Patch.RoomID != r.id {
		return warn(ReasonOutOfScope, ev.Kind, "room "+ev.Patch.RoomID)
	}
	if err := r.advance(ev); err != nil {
		return err
	}

	switch ev.Kind {
	case protocol.EvtPlayerJoined:
		if ev.UserID == "" {
			return warn(ReasonInvalid, ev.Kind, "missing user id")
		}
		r.removeMember(ev.UserID)
		if ev.Spectator {
			r.snap.Spectators = insertByJoin(r.snap.Spectators, ev.Player)
		} else {
			r.snap.Players = insertByJoin(r.snap.Players, ev.Player)
		}
		r.roster[ev.UserID] = rosterMark{at: ev.At, present: true, spectator: ev.Spectator, player: ev.Player}

	case protocol.EvtPlayerLeft, protocol.EvtUserKicked:
		r.removeMember(ev.UserID)
		r.roster[ev.UserID] = rosterMark{at: ev.At}
		if r.snap.OwnerID == ev.UserID && len(r.snap.Players) > 0 {
			r.snap.OwnerID = r.snap.Players[0].UserID
			r.fields[fieldOwner] = ev.At
		}

	case protocol.EvtSettingsChanged:
		r.snap.Settings = ev.Settings
		r.fields[fieldSettings] = ev.At
		if ev.Name != "" {
			r.snap.Name = ev.Name
			r.fields[fieldName] = ev.At
		}

	case protocol.EvtTeamAssigned:
		for i := range r.snap.Players {
			if r.snap.Players[i].UserID == ev.UserID {
				r.snap.Players[i].TeamID = ev.TeamID
				r.snap.Players[i].IsCaptain = ev.IsCaptain
			}
		}
		r.teams[ev.UserID] = ev.At

	case protocol.EvtGameStarted, protocol.EvtGameEnded:
		status := ev.Status
		if status == "" {
			status = protocol.RoomInProgress
			if ev.Kind == protocol.EvtGameEnded {
				status = protocol.RoomEnded
			}
		}
		r.snap.Status = status
		r.fields[fieldStatus] = ev.At

	default:
		return warn(ReasonInvalid, ev.Kind, "unknown room event")
	}
	return nil
}

// advance checks ev against the last applied marker and moves the marker
// forward. Seq wins when the server sets it; the timestamp is the fallback.
func (r *Room) advance(ev RoomEvent) error {
	if seq := ev.Patch.Seq; seq > 0 {
		switch {
		case seq < r.lastSeq:
			return warn(ReasonStale, ev.Kind, fmt.Sprintf("seq %d < %d", seq, r.lastSeq))
		case seq == r.lastSeq:
			return warn(ReasonDuplicate, ev.Kind, fmt.Sprintf("seq %d", seq))
		}
		r.lastSeq = seq
	} else if !ev.Patch.TS.IsZero() && ev.Patch.TS.Before(r.lastTS) {
		return warn(ReasonStale, ev.Kind, "timestamp older than last applied")
	}
	if ev.Patch.TS.After(r.lastTS) {
		r.lastTS = ev.Patch.TS
	}
	return nil
}

// ApplyFetch merges a fetched snapshot issued at issuedAt. Anything a push
// changed after issuedAt keeps the pushed value.
func (r *Room) ApplyFetch(fetched protocol.RoomSnapshot, issuedAt time.Time) error {
	if fetched.ID != r.id {
		return warn(ReasonOutOfScope, "fetch", "room "+fetched.ID)
	}
	merged := fetched.Clone()

	newer := func(at time.Time) bool { return at.After(issuedAt) }
	if newer(r.fields[fieldName]) {
		merged.Name = r.snap.Name
	}
	if newer(r.fields[fieldSettings]) {
		merged.Settings = r.snap.Settings
	}
	if newer(r.fields[fieldStatus]) {
		merged.Status = r.snap.Status
	}
	if newer(r.fields[fieldOwner]) {
		merged.OwnerID = r.snap.OwnerID
	}

	for uid, mark := range r.roster {
		if !newer(mark.at) {
			continue
		}
		merged.Players = removeUser(merged.Players, uid)
		merged.Spectators = removeUser(merged.Spectators, uid)
		if !mark.present {
			continue
		}
		if mark.spectator {
			merged.Spectators = insertByJoin(merged.Spectators, mark.player)
		} else {
			merged.Players = insertByJoin(merged.Players, mark.player)
		}
	}

	for uid, at := range r.teams {
		if !newer(at) {
			continue
		}
		cur, ok := r.snap.Player(uid)
		if !ok {
			continue
		}
		for i := range merged.Players {
			if merged.Players[i].UserID == uid {
				merged.Players[i].TeamID = cur.TeamID
				merged.Players[i].IsCaptain = cur.IsCaptain
			}
		}
	}

	r.snap = merged
	return nil
}

func (r *Room) removeMember(uid string) {
	r.snap.Players = removeUser(r.snap.Players, uid)
	r.snap.Spectators = removeUser(r.snap.Spectators, uid)
}

func removeUser(players []protocol.Player, uid string) []protocol.Player {
	return slices.DeleteFunc(players, func(p protocol.Player) bool { return p.UserID == uid })
}

// insertByJoin keeps the list ordered by join time. Players without a join
// time go to the end.
func insertByJoin(players []protocol.Player, p protocol.Player) []protocol.Player {
	if p.JoinedAt.IsZero() {
		return append(players, p)
	}
	i := len(players)
	for j, q := range players {
		if !q.JoinedAt.IsZero() && q.JoinedAt.After(p.JoinedAt) {
			i = j
			break
		}
	}
	return slices.Insert(players, i, p)
}
