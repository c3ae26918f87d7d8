package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"wnpbridge/internal/adapter"
	"wnpbridge/internal/arbiter"
	"wnpbridge/internal/models"
)

const commandTimeout = 10 * time.Second

type nowPlaying struct {
	Active bool              `json:"active"`
	Info   *models.MediaInfo `json:"info"`
}

func newNowPlaying(info *models.MediaInfo) nowPlaying {
	return nowPlaying{Active: info != nil, Info: info}
}

func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	if s.arbiter == nil {
		writeError(w, http.StatusServiceUnavailable, "arbiter not configured")
		return
	}
	info, ok := s.arbiter.Current()
	if !ok {
		writeJSON(w, http.StatusOK, newNowPlaying(nil))
		return
	}
	writeJSON(w, http.StatusOK, newNowPlaying(&info))
}

func (s *Server) handleListTabs(w http.ResponseWriter, r *http.Request) {
	if s.arbiter == nil {
		writeError(w, http.StatusServiceUnavailable, "arbiter not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.arbiter.Tabs())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.arbiter == nil {
		writeError(w, http.StatusServiceUnavailable, "arbiter not configured")
		return
	}
	var cmd models.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if cmd.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	cmd.EventID, cmd.EventSocketPort = 0, 0

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	err := adapter.RunCommand(ctx, s.arbiter, cmd)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, models.ErrNoPlayer):
		writeError(w, http.StatusConflict, "no active player")
	case errors.Is(err, models.ErrUnsupported):
		writeError(w, http.StatusUnprocessableEntity, "unsupported by player")
	case errors.Is(err, arbiter.ErrTabClosed), errors.Is(err, arbiter.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
