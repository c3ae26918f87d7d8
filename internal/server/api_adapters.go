package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"wnpbridge/internal/models"
)

func parseAdapterID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrConflict):
		writeError(w, http.StatusConflict, "port already in use by another adapter")
	case errors.Is(err, models.ErrBuiltIn):
		writeError(w, http.StatusForbidden, "built-in adapters can only be disabled")
	default:
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

// syncAdapterToManager rebuilds the live socket for a after its settings
// changed.
func (s *Server) syncAdapterToManager(a *models.Adapter) {
	if s.adapters == nil {
		return
	}
	s.adapters.Sync(*a)
}

// adapterStatus joins a stored adapter with its live connection state.
func (s *Server) adapterStatus(a models.Adapter) models.AdapterStatus {
	if s.adapters != nil {
		if st, ok := s.adapters.Status(a.ID); ok {
			st.Adapter = a
			return st
		}
	}
	return models.AdapterStatus{Adapter: a, State: models.ConnClosed, Closed: true}
}

func (s *Server) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	adapters, err := s.store.ListAdapters()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	out := make([]models.AdapterStatus, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, s.adapterStatus(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAdapter(w http.ResponseWriter, r *http.Request) {
	var input models.AdapterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	a := input.ToAdapter()
	if err := a.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateAdapter(a); err != nil {
		writeStoreError(w, err)
		return
	}
	s.syncAdapterToManager(a)
	writeJSON(w, http.StatusCreated, s.adapterStatus(*a))
}

func (s *Server) handleGetAdapter(w http.ResponseWriter, r *http.Request) {
	id, err := parseAdapterID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	a, err := s.store.GetAdapter(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.adapterStatus(*a))
}

func (s *Server) handleUpdateAdapter(w http.ResponseWriter, r *http.Request) {
	id, err := parseAdapterID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var input models.AdapterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	existing, err := s.store.GetAdapter(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	a := input.ToAdapter()
	a.ID = id
	a.Custom = existing.Custom
	if a.Custom {
		if err := a.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := s.store.UpdateAdapter(a); err != nil {
		writeStoreError(w, err)
		return
	}
	s.syncAdapterToManager(a)
	writeJSON(w, http.StatusOK, s.adapterStatus(*a))
}

func (s *Server) handleDeleteAdapter(w http.ResponseWriter, r *http.Request) {
	id, err := parseAdapterID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.store.DeleteAdapter(id); err != nil {
		writeStoreError(w, err)
		return
	}
	if s.adapters != nil {
		s.adapters.Remove(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnectAdapter(w http.ResponseWriter, r *http.Request) {
	s.adapterAction(w, r, true)
}

func (s *Server) handleDisconnectAdapter(w http.ResponseWriter, r *http.Request) {
	s.adapterAction(w, r, false)
}

func (s *Server) adapterAction(w http.ResponseWriter, r *http.Request, connect bool) {
	if s.adapters == nil {
		writeError(w, http.StatusServiceUnavailable, "adapters not configured")
		return
	}
	id, err := parseAdapterID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	a, err := s.store.GetAdapter(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if connect {
		if _, ok := s.adapters.Status(id); !ok {
			s.adapters.Sync(*a)
		}
		err = s.adapters.Connect(id)
	} else {
		err = s.adapters.Disconnect(id)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.adapterStatus(*a))
}
