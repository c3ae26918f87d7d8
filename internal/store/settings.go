package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"wnpbridge/internal/models"
)

const sitePolicyKey = "sites.policy"

const settingUpsert = `INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`

func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting setting: %w", err)
	}
	return value, nil
}

func (s *Store) SetSetting(key, value string) error {
	if _, err := s.db.Exec(settingUpsert, key, value); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// GetSitePolicy returns the saved site preferences. Unset preferences leave
// every dedicated site enabled and the generic player off.
func (s *Store) GetSitePolicy() (models.SitePolicy, error) {
	policy := models.SitePolicy{
		DisabledSites: []string{},
		GenericAllow:  []string{},
		GenericBlock:  []string{},
	}
	raw, err := s.GetSetting(sitePolicyKey)
	if err != nil || raw == "" {
		return policy, err
	}
	if err := json.Unmarshal([]byte(raw), &policy); err != nil {
		return policy, fmt.Errorf("decoding site policy: %w", err)
	}
	return policy, nil
}

func (s *Store) SetSitePolicy(p models.SitePolicy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding site policy: %w", err)
	}
	return s.SetSetting(sitePolicyKey, string(data))
}
