package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"wnpbridge/internal/models"
)

func TestSitePolicyAPI(t *testing.T) {
	srv, s := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/settings/sites", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var p models.SitePolicy
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.GenericEnabled {
		t.Fatal("generic player should default to off")
	}

	body := `{"disabled_sites":[" Spotify ","spotify",""],"generic_enabled":true,"generic_block":["example.com"]}`
	w = doJSON(t, srv, http.MethodPut, "/api/settings/sites", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	saved, err := s.GetSitePolicy()
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.DisabledSites) != 1 || saved.DisabledSites[0] != "Spotify" {
		t.Fatalf("expected cleaned disabled list, got %v", saved.DisabledSites)
	}
	if !saved.GenericEnabled || saved.GenericAllowed("media.example.com") {
		t.Fatalf("unexpected saved policy: %+v", saved)
	}
	if saved.GenericAllow == nil {
		t.Fatal("expected empty allow list, not nil")
	}
}

func TestSitePolicyAPIInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	if w := doJSON(t, srv, http.MethodPut, "/api/settings/sites", `{bad`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
