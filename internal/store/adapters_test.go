package store

import (
	"errors"
	"testing"

	"wnpbridge/internal/models"
)

func TestListAdaptersSeeded(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	adapters, err := s.ListAdapters()
	if err != nil {
		t.Fatalf("ListAdapters: %v", err)
	}
	if len(adapters) != 1 {
		t.Fatalf("expected 1 built-in adapter, got %d", len(adapters))
	}
	a := adapters[0]
	if a.Name != "Rainmeter" || a.Port != 8974 || a.Custom || !a.Enabled {
		t.Fatalf("unexpected built-in adapter: %+v", a)
	}
	if a.GitHubRepo != "keifufu/WebNowPlaying-Rainmeter" {
		t.Fatalf("github_repo = %q", a.GitHubRepo)
	}
}

func TestCreateAndGetAdapter(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	a := &models.Adapter{Name: "Deck", Port: 9100, Enabled: true, Custom: true}
	if err := s.CreateAdapter(a); err != nil {
		t.Fatalf("CreateAdapter: %v", err)
	}
	if a.ID == 0 {
		t.Fatal("expected non-zero ID")
	}
	if a.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	got, err := s.GetAdapter(a.ID)
	if err != nil {
		t.Fatalf("GetAdapter: %v", err)
	}
	if got.Name != "Deck" || got.Port != 9100 || !got.Custom {
		t.Fatalf("unexpected adapter: %+v", got)
	}
}

func TestCreateAdapterPortConflict(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	err := s.CreateAdapter(&models.Adapter{Name: "Dup", Port: 8974, Custom: true})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetAdapterNotFound(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	_, err := s.GetAdapter(999)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCustomAdapter(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	a := &models.Adapter{Name: "Deck", Port: 9100, Enabled: true, Custom: true}
	if err := s.CreateAdapter(a); err != nil {
		t.Fatal(err)
	}
	a.Name = "Deck 2"
	a.Port = 9101
	a.Enabled = false
	if err := s.UpdateAdapter(a); err != nil {
		t.Fatalf("UpdateAdapter: %v", err)
	}
	if a.Name != "Deck 2" || a.Port != 9101 || a.Enabled {
		t.Fatalf("update not applied: %+v", a)
	}
}

func TestUpdateBuiltInOnlyChangesEnabled(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	adapters, err := s.ListAdapters()
	if err != nil {
		t.Fatal(err)
	}
	a := adapters[0]
	a.Name = "Renamed"
	a.Port = 9999
	a.Enabled = false
	if err := s.UpdateAdapter(&a); err != nil {
		t.Fatalf("UpdateAdapter: %v", err)
	}
	if a.Name != "Rainmeter" || a.Port != 8974 {
		t.Fatalf("built-in fields changed: %+v", a)
	}
	if a.Enabled {
		t.Fatal("expected built-in adapter to be disabled")
	}
}

func TestUpdateAdapterNotFound(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	err := s.UpdateAdapter(&models.Adapter{ID: 999, Name: "x", Port: 1})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAdapterPortConflict(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	a := &models.Adapter{Name: "Deck", Port: 9100, Custom: true}
	if err := s.CreateAdapter(a); err != nil {
		t.Fatal(err)
	}
	a.Port = 8974
	if err := s.UpdateAdapter(a); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDeleteAdapter(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	a := &models.Adapter{Name: "Deck", Port: 9100, Custom: true}
	if err := s.CreateAdapter(a); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAdapter(a.ID); err != nil {
		t.Fatalf("DeleteAdapter: %v", err)
	}
	if _, err := s.GetAdapter(a.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteAdapter(a.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteBuiltInAdapter(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	adapters, err := s.ListAdapters()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAdapter(adapters[0].ID); !errors.Is(err, models.ErrBuiltIn) {
		t.Fatalf("expected ErrBuiltIn, got %v", err)
	}
}
