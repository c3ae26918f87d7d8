package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"wnpbridge/internal/models"
)

func (s *Server) handleGetSitePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetSitePolicy()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateSitePolicy(w http.ResponseWriter, r *http.Request) {
	var p models.SitePolicy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p.DisabledSites = cleanList(p.DisabledSites)
	p.GenericAllow = cleanList(p.GenericAllow)
	p.GenericBlock = cleanList(p.GenericBlock)
	if err := s.store.SetSitePolicy(p); err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// cleanList trims entries and drops blanks and case-insensitive duplicates.
func cleanList(in []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
