package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"wnpbridge/internal/httputil"
)

const defaultAPIBase = "https://api.github.com"

const (
	releaseTTL    = 6 * time.Hour
	failureTTL    = 10 * time.Minute
	lookupTimeout = 15 * time.Second
)

// ErrLookupFailed is cached in place of a release when GitHub could not be
// queried, so callers treat the adapter version as unknown.
var ErrLookupFailed = errors.New("release lookup failed")

// Release is the newest published release of an adapter repository.
type Release struct {
	Repo       string `json:"repo"`
	Latest     string `json:"latest_version"`
	ReleaseURL string `json:"release_url,omitempty"`
}

type gitHubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

type cacheEntry struct {
	release   Release
	err       error
	fetchedAt time.Time
}

// Checker looks up the latest release of adapter repositories on GitHub and
// caches the answers, failures included.
type Checker struct {
	apiBase   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	group     singleflight.Group
	now       func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewChecker creates a checker identifying itself with agentVersion.
// Set VERSION_CHECK_URL to override the GitHub API base (useful for testing).
func NewChecker(agentVersion string) *Checker {
	api := defaultAPIBase
	if u := os.Getenv("VERSION_CHECK_URL"); u != "" {
		if err := httputil.ValidateBaseURL(u); err != nil {
			log.Printf("version check: ignoring VERSION_CHECK_URL: %v", err)
		} else {
			api = strings.TrimSuffix(u, "/")
		}
	}
	return &Checker{
		apiBase:   api,
		userAgent: "wnpbridge/" + strings.TrimPrefix(agentVersion, "v"),
		client:    httputil.NewClient(),
		// unauthenticated GitHub API allows 60 requests per hour
		limiter: rate.NewLimiter(rate.Every(time.Minute), 5),
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
}

// Latest returns the newest release of repo ("owner/name"). Concurrent
// calls for the same repo share one request, which outlives any single
// caller's ctx so one cancelled caller cannot poison the cache.
func (c *Checker) Latest(ctx context.Context, repo string) (Release, error) {
	if e, ok := c.cached(repo); ok {
		return e.release, e.err
	}

	ch := c.group.DoChan(repo, func() (any, error) {
		if e, ok := c.cached(repo); ok {
			return e.release, e.err
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		rel, err := c.fetch(fetchCtx, repo)
		if err != nil {
			log.Printf("version check %s: %v", repo, err)
			err = fmt.Errorf("%s: %w", repo, ErrLookupFailed)
		}
		c.mu.Lock()
		c.cache[repo] = cacheEntry{release: rel, err: err, fetchedAt: c.now()}
		c.mu.Unlock()
		return rel, err
	})
	select {
	case res := <-ch:
		rel, _ := res.Val.(Release)
		return rel, res.Err
	case <-ctx.Done():
		return Release{}, ctx.Err()
	}
}

// Outdated reports whether current is older than the latest release of
// repo. A failed lookup reports false along with the error.
func (c *Checker) Outdated(ctx context.Context, repo, current string) (bool, Release, error) {
	rel, err := c.Latest(ctx, repo)
	if err != nil {
		return false, rel, err
	}
	current = strings.TrimPrefix(current, "v")
	if current == "" || rel.Latest == "" {
		return false, rel, nil
	}
	return compareSemver(rel.Latest, current) > 0, rel, nil
}

func (c *Checker) cached(repo string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.cache[repo]
	if !ok {
		return e, false
	}
	ttl := releaseTTL
	if e.err != nil {
		ttl = failureTTL
	}
	if c.now().Sub(e.fetchedAt) > ttl {
		return e, false
	}
	return e, true
}

// compareSemver compares two dotted version strings numerically.
// Returns -1 if a < b, 0 if equal, 1 if a > b.
// Pre-release suffixes (e.g. "1.0.0-rc1") are stripped before comparison.
func compareSemver(a, b string) int {
	a = stripPreRelease(a)
	b = stripPreRelease(b)
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")
	for i := 0; i < 3; i++ {
		av, bv := 0, 0
		if i < len(aParts) {
			av, _ = strconv.Atoi(aParts[i])
		}
		if i < len(bParts) {
			bv, _ = strconv.Atoi(bParts[i])
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

func stripPreRelease(v string) string {
	if i := strings.IndexAny(v, "-+"); i != -1 {
		return v[:i]
	}
	return v
}

func (c *Checker) fetch(ctx context.Context, repo string) (Release, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Release{}, fmt.Errorf("rate limit: %w", err)
	}

	url := c.apiBase + "/repos/" + repo + "/releases/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Release{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Release{}, err
	}
	defer httputil.DrainBody(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
	if err != nil {
		return Release{}, fmt.Errorf("read error: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("GitHub returned %d: %s", resp.StatusCode, httputil.Truncate(body, 200))
	}

	var release gitHubRelease
	if err := json.Unmarshal(body, &release); err != nil {
		return Release{}, fmt.Errorf("parse error: %w", err)
	}
	return Release{
		Repo:       repo,
		Latest:     strings.TrimPrefix(release.TagName, "v"),
		ReleaseURL: release.HTMLURL,
	}, nil
}
