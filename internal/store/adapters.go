package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wnpbridge/internal/models"
)

const adapterColumns = `id, name, port, enabled, custom, github_repo, created_at, updated_at`

func scanAdapter(scanner interface{ Scan(...any) error }) (models.Adapter, error) {
	var a models.Adapter
	err := scanner.Scan(&a.ID, &a.Name, &a.Port, &a.Enabled, &a.Custom, &a.GitHubRepo, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) CreateAdapter(a *models.Adapter) error {
	created, err := scanAdapter(s.db.QueryRow(
		`INSERT INTO adapters (name, port, enabled, custom, github_repo) VALUES (?, ?, ?, ?, ?) RETURNING `+adapterColumns,
		a.Name, a.Port, a.Enabled, a.Custom, a.GitHubRepo,
	))
	if isUniqueViolation(err) {
		return fmt.Errorf("port %d: %w", a.Port, models.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating adapter: %w", err)
	}
	*a = created
	return nil
}

func (s *Store) GetAdapter(id int64) (*models.Adapter, error) {
	a, err := scanAdapter(s.db.QueryRow(
		`SELECT `+adapterColumns+` FROM adapters WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("adapter %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting adapter: %w", err)
	}
	return &a, nil
}

func (s *Store) ListAdapters() ([]models.Adapter, error) {
	rows, err := s.db.Query(`SELECT ` + adapterColumns + ` FROM adapters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing adapters: %w", err)
	}
	defer rows.Close()

	adapters := []models.Adapter{}
	for rows.Next() {
		a, err := scanAdapter(rows)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, rows.Err()
}

// UpdateAdapter saves a. Built-in adapters only accept a change of the
// enabled flag; their other fields are kept.
func (s *Store) UpdateAdapter(a *models.Adapter) error {
	updated, err := scanAdapter(s.db.QueryRow(
		`UPDATE adapters SET
			enabled = ?,
			name = CASE WHEN custom THEN ? ELSE name END,
			port = CASE WHEN custom THEN ? ELSE port END,
			github_repo = CASE WHEN custom THEN ? ELSE github_repo END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? RETURNING `+adapterColumns,
		a.Enabled, a.Name, a.Port, a.GitHubRepo, a.ID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("adapter %d: %w", a.ID, models.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("port %d: %w", a.Port, models.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("updating adapter: %w", err)
	}
	*a = updated
	return nil
}

// DeleteAdapter removes a custom adapter. Built-in adapters can only be
// disabled.
func (s *Store) DeleteAdapter(id int64) error {
	a, err := s.GetAdapter(id)
	if err != nil {
		return err
	}
	if !a.Custom {
		return fmt.Errorf("adapter %d: %w", id, models.ErrBuiltIn)
	}
	result, err := s.db.Exec(`DELETE FROM adapters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting adapter: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("adapter %d: %w", id, models.ErrNotFound)
	}
	return nil
}
