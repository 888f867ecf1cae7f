package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DoyleJ11/lol-lobby-client/internal/api"
	"github.com/DoyleJ11/lol-lobby-client/internal/auth"
	"github.com/DoyleJ11/lol-lobby-client/internal/engine"
	"github.com/DoyleJ11/lol-lobby-client/internal/hub"
	"github.com/DoyleJ11/lol-lobby-client/internal/room"
	"github.com/DoyleJ11/lol-lobby-client/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, env api.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, status int, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode response")
		return
	}
	writeJSON(w, status, api.Envelope{Status: api.StatusSuccess, Data: raw})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.Envelope{Status: api.StatusError, Message: msg})
}

// writeErr maps domain errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrBadPassword):
		status = http.StatusUnauthorized
	case errors.Is(err, engine.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, hub.ErrRoomNotFound), errors.Is(err, room.ErrClosed), errors.Is(err, engine.ErrNotInRoom):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrWrongStatus), errors.Is(err, engine.ErrAlreadyInRoom), errors.Is(err, engine.ErrVoiceOff):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInvalidSettings), errors.Is(err, engine.ErrUnknownTeam),
		errors.Is(err, store.ErrEmptyContent), errors.Is(err, auth.ErrBadUsername):
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
