package models

import (
	"errors"
	"strings"
	"time"
)

// Adapter is a configured external consumer reachable on a local port.
type Adapter struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Port       int       `json:"port"`
	Enabled    bool      `json:"enabled"`
	Custom     bool      `json:"custom"`
	GitHubRepo string    `json:"github_repo,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (a *Adapter) Validate() error {
	if a.Name == "" {
		return errors.New("name is required")
	}
	if a.Port <= 0 || a.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if a.GitHubRepo != "" {
		owner, name, ok := strings.Cut(a.GitHubRepo, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return errors.New("github_repo must be owner/name")
		}
	}
	return nil
}

type AdapterInput struct {
	Name       string `json:"name"`
	Port       int    `json:"port"`
	Enabled    bool   `json:"enabled"`
	GitHubRepo string `json:"github_repo,omitempty"`
}

// ToAdapter builds a user-defined adapter. Built-in adapters only come from
// migrations.
func (ai *AdapterInput) ToAdapter() *Adapter {
	return &Adapter{
		Name:       ai.Name,
		Port:       ai.Port,
		Enabled:    ai.Enabled,
		Custom:     true,
		GitHubRepo: ai.GitHubRepo,
	}
}

// Revision is the negotiated adapter wire protocol.
type Revision string

const (
	RevisionUnknown Revision = ""
	RevisionLegacy  Revision = "legacy"
	Revision1       Revision = "1"
	Revision2       Revision = "2"
	Revision3       Revision = "3"
)

func (r Revision) Valid() bool {
	switch r {
	case RevisionLegacy, Revision1, Revision2, Revision3:
		return true
	}
	return false
}

type ConnectionState string

const (
	ConnClosed          ConnectionState = "closed"
	ConnConnecting      ConnectionState = "connecting"
	ConnOpenUnversioned ConnectionState = "open_unversioned"
	ConnOpenVersioned   ConnectionState = "open_versioned"
)

// AdapterStatus is the live view of one adapter connection.
type AdapterStatus struct {
	Adapter           Adapter         `json:"adapter"`
	State             ConnectionState `json:"state"`
	Revision          Revision        `json:"revision,omitempty"`
	Version           string          `json:"version,omitempty"`
	LatestVersion     string          `json:"latest_version,omitempty"`
	Outdated          bool            `json:"outdated"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
	Closed            bool            `json:"closed"`
}

// SitePolicy holds the user's site enablement preferences.
type SitePolicy struct {
	DisabledSites []string `json:"disabled_sites"`
	// GenericEnabled turns on the fallback player for unknown sites.
	GenericEnabled bool `json:"generic_enabled"`
	// GenericAllowlistMode restricts the fallback to GenericAllow; otherwise
	// every host not in GenericBlock is eligible.
	GenericAllowlistMode bool     `json:"generic_allowlist_mode"`
	GenericAllow         []string `json:"generic_allow"`
	GenericBlock         []string `json:"generic_block"`
}

func (p SitePolicy) SiteEnabled(name string) bool {
	for _, d := range p.DisabledSites {
		if strings.EqualFold(d, name) {
			return false
		}
	}
	return true
}

// GenericAllowed reports whether the fallback player may run on host.
func (p SitePolicy) GenericAllowed(host string) bool {
	if !p.GenericEnabled {
		return false
	}
	if p.GenericAllowlistMode {
		return hostListed(p.GenericAllow, host)
	}
	return !hostListed(p.GenericBlock, host)
}

// hostListed matches host against entries, where an entry also matches its
// subdomains.
func hostListed(entries []string, host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if host == e || strings.HasSuffix(host, "."+e) {
			return true
		}
	}
	return false
}
