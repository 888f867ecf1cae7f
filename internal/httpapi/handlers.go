package httpapi

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/api"
	"github.com/DoyleJ11/lol-lobby-client/internal/engine"
	"github.com/DoyleJ11/lol-lobby-client/internal/hub"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/room"
	"github.com/DoyleJ11/lol-lobby-client/internal/store"
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type handlers struct {
	hub *hub.Hub
	log *zap.Logger
}

func (h *handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRoom
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "room name is required")
		return
	}
	if req.Settings == (protocol.RoomSettings{}) {
		req.Settings = engine.DefaultSettings()
	}
	if err := engine.ValidateSettings(req.Settings, 0); err != nil {
		writeErr(w, err)
		return
	}

	var code string
	for {
		c, err := GenerateCode()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate code")
			return
		}
		_, err = h.hub.Room(r.Context(), c)
		if errors.Is(err, hub.ErrRoomNotFound) {
			code = c
			break
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		h.log.Debug("collision on code, regenerating", zap.String("code", c))
	}

	owner := userFrom(r.Context())
	reply := make(chan *room.Room, 1)
	state := engine.NewRoomState(code, req.Name, owner.ID, req.Settings)
	if err := h.hub.Send(r.Context(), hub.CreateRoom{ID: code, State: state, Reply: reply}); err != nil {
		writeErr(w, err)
		return
	}
	select {
	case <-reply:
	case <-r.Context().Done():
		return
	}
	h.log.Info("room created", zap.String("room_id", code), zap.String("owner_id", owner.ID))
	writeData(w, http.StatusCreated, state.Room)
}

func (h *handlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.hub.Rooms(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]api.RoomSummary, 0, len(rooms))
	for _, rm := range rooms {
		v, err := rm.View(r.Context())
		if err != nil {
			continue
		}
		s := v.State.Room
		out = append(out, api.RoomSummary{
			ID:          s.ID,
			Name:        s.Name,
			OwnerID:     s.OwnerID,
			Status:      s.Status,
			PlayerCount: len(s.Players),
			Capacity:    s.Settings.Capacity,
		})
	}
	slices.SortFunc(out, func(a, b api.RoomSummary) int { return strings.Compare(a.ID, b.ID) })
	writeData(w, http.StatusOK, out)
}

// view resolves the {roomID} URL parameter.
func (h *handlers) view(ctx context.Context, r *http.Request) (*room.Room, room.View, error) {
	rm, err := h.hub.Room(ctx, chi.URLParam(r, "roomID"))
	if err != nil {
		return nil, room.View{}, err
	}
	v, err := rm.View(ctx)
	return rm, v, err
}

func (h *handlers) RoomDetail(w http.ResponseWriter, r *http.Request) {
	_, v, err := h.view(r.Context(), r)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, v.State.Room)
}

func (h *handlers) Kick(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	h.command(w, r, engine.Command{Type: engine.CmdKick, UserID: body.UserID})
}

func (h *handlers) StartGame(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, engine.Command{Type: engine.CmdStartGame})
}

func (h *handlers) EndGame(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, engine.Command{Type: engine.CmdEndGame})
}

func (h *handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s protocol.RoomSettings
	if err := decodeBody(w, r, &s); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	h.command(w, r, engine.Command{Type: engine.CmdUpdateSettings, Settings: s})
}

func (h *handlers) AssignTeam(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		TeamID int    `json:"teamId"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	h.command(w, r, engine.Command{Type: engine.CmdAssignTeam, UserID: body.UserID, TeamID: body.TeamID})
}

// command applies an owner action and answers with the resulting room.
func (h *handlers) command(w http.ResponseWriter, r *http.Request, cmd engine.Command) {
	rm, err := h.hub.Room(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	cmd.ActorID = userFrom(r.Context()).ID
	if err := rm.Apply(r.Context(), cmd); err != nil {
		writeErr(w, err)
		return
	}
	v, err := rm.View(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, v.State.Room)
}

func (h *handlers) RoomMessages(w http.ResponseWriter, r *http.Request) {
	_, v, err := h.view(r.Context(), r)
	if err != nil {
		writeErr(w, err)
		return
	}
	msgs, ok := h.history(w, r, v.State.Room.ID)
	if !ok {
		return
	}
	// team channels stay private to their team
	p, _ := v.State.Room.Player(userFrom(r.Context()).ID)
	msgs = slices.DeleteFunc(msgs, func(m protocol.Message) bool {
		return m.TeamID > 0 && m.TeamID != p.TeamID
	})
	writeData(w, http.StatusOK, msgs)
}

func (h *handlers) LobbyMessages(w http.ResponseWriter, r *http.Request) {
	if msgs, ok := h.history(w, r, ""); ok {
		writeData(w, http.StatusOK, msgs)
	}
}

// history reads the page selected by the before (RFC 3339) and limit query
// parameters.
func (h *handlers) history(w http.ResponseWriter, r *http.Request, roomID string) ([]protocol.Message, bool) {
	q := r.URL.Query()
	var page store.Page
	page.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("before"); v != "" {
		before, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be an RFC 3339 time")
			return nil, false
		}
		page.Before = before
	}
	msgs, err := h.hub.Store().List(r.Context(), roomID, page)
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return msgs, true
}

func (h *handlers) PostRoomMessage(w http.ResponseWriter, r *http.Request) {
	_, v, err := h.view(r.Context(), r)
	if err != nil {
		writeErr(w, err)
		return
	}
	user := userFrom(r.Context())
	if !member(v.State.Room, user.ID) {
		writeErr(w, engine.ErrNotInRoom)
		return
	}
	h.post(w, r, v.State.Room.ID)
}

func (h *handlers) PostLobbyMessage(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, "")
}

func (h *handlers) post(w http.ResponseWriter, r *http.Request, roomID string) {
	var m protocol.SendMessage
	if err := decodeBody(w, r, &m); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	user := userFrom(r.Context())
	saved, err := h.hub.PostMessage(r.Context(), protocol.Message{
		ClientMsgID: m.ClientMsgID,
		RoomID:      roomID,
		UserID:      user.ID,
		Username:    user.Username,
		Content:     m.Content,
		Type:        m.Type,
		TeamID:      m.TeamID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, saved)
}

func (h *handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	n, err := h.hub.LobbySize(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]int{"lobbyClients": n})
}

func member(s protocol.RoomSnapshot, uid string) bool {
	if _, ok := s.Player(uid); ok {
		return true
	}
	return slices.ContainsFunc(s.Spectators, func(p protocol.Player) bool { return p.UserID == uid })
}
