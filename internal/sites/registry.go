package sites

import (
	"net/url"
	"strings"

	"wnpbridge/internal/models"
)

// Registry resolves a page URL to the site integration that should run on it.
type Registry struct {
	sites   []*Site
	generic *Site
}

// NewRegistry builds a registry. generic may be nil, disabling the fallback.
func NewRegistry(generic *Site, sites ...*Site) *Registry {
	return &Registry{sites: sites, generic: generic}
}

// Match returns the dedicated site for u, or the generic player when no
// dedicated site matches and policy allows it on u's host. A dedicated site
// the user disabled does not fall back to the generic player.
func (r *Registry) Match(u *url.URL, policy models.SitePolicy) (*Site, bool) {
	if u == nil {
		return nil, false
	}
	for _, s := range r.sites {
		if s.Match == nil || !s.Match(u) {
			continue
		}
		if !policy.SiteEnabled(s.Name) {
			return nil, false
		}
		return s, true
	}
	if r.generic != nil && policy.GenericAllowed(u.Hostname()) {
		return r.generic, true
	}
	return nil, false
}

// Names lists the dedicated sites in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sites))
	for _, s := range r.sites {
		names = append(names, s.Name)
	}
	return names
}

// HostMatcher returns a matcher for host and its subdomains.
func HostMatcher(hosts ...string) func(*url.URL) bool {
	return func(u *url.URL) bool {
		h := strings.ToLower(u.Hostname())
		for _, want := range hosts {
			if h == want || strings.HasSuffix(h, "."+want) {
				return true
			}
		}
		return false
	}
}
