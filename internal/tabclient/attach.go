package tabclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wnpbridge/internal/httputil"
	"wnpbridge/internal/models"
	"wnpbridge/internal/sites"
)

// policyTimeout bounds the policy lookup; the bridge is local and a page
// should not wait on it for long.
const policyTimeout = 2 * time.Second

// ErrNoSite is returned by Attach when no site integration may run on the
// page.
var ErrNoSite = errors.New("no site for page")

// FetchPolicy reads the user's site policy from the bridge at baseURL.
func FetchPolicy(ctx context.Context, client *http.Client, baseURL string) (models.SitePolicy, error) {
	if err := httputil.ValidateBaseURL(baseURL); err != nil {
		return models.SitePolicy{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+"/api/settings/sites", nil)
	if err != nil {
		return models.SitePolicy{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.SitePolicy{}, err
	}
	defer httputil.DrainBody(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
	if err != nil {
		return models.SitePolicy{}, fmt.Errorf("read error: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.SitePolicy{}, fmt.Errorf("bridge returned %d: %s", resp.StatusCode, httputil.Truncate(body, 200))
	}
	var p models.SitePolicy
	if err := json.Unmarshal(body, &p); err != nil {
		return models.SitePolicy{}, fmt.Errorf("parse error: %w", err)
	}
	return p, nil
}

// Attach resolves the site integration for pageURL under the bridge's site
// policy and returns a client reporting it. When the policy cannot be read
// the default policy applies: dedicated sites run, the generic player does
// not.
func Attach(ctx context.Context, baseURL, pageURL string, reg *sites.Registry, opts ...Option) (*Client, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("page url: %w", err)
	}
	policy, err := FetchPolicy(ctx, httputil.NewClientWithTimeout(policyTimeout), baseURL)
	if err != nil {
		log.Printf("tab: site policy unavailable, using defaults: %v", err)
		policy = models.SitePolicy{}
	}
	site, ok := reg.Match(u, policy)
	if !ok {
		return nil, fmt.Errorf("%s: %w", u.Hostname(), ErrNoSite)
	}
	return New(baseURL, sites.NewAggregator(site), opts...), nil
}
