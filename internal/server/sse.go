package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"wnpbridge/internal/models"
)

func (s *Server) handleNowPlayingSSE(w http.ResponseWriter, r *http.Request) {
	if s.arbiter == nil {
		writeError(w, http.StatusServiceUnavailable, "arbiter not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.arbiter.Subscribe()
	defer s.arbiter.Unsubscribe(ch)

	var initial *models.MediaInfo
	if info, ok := s.arbiter.Current(); ok {
		initial = &info
	}
	if data, err := json.Marshal(newNowPlaying(initial)); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(newNowPlaying(snap))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
