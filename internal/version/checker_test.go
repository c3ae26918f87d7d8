package version

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestChecker(t *testing.T, handler http.HandlerFunc) *Checker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewChecker("1.0.0")
	c.apiBase = srv.URL
	c.client = srv.Client()
	c.limiter = rate.NewLimiter(rate.Inf, 0)
	return c
}

func releaseHandler(t *testing.T, tag string, calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if r.URL.Path != "/repos/keifufu/WebNowPlaying-Rainmeter/releases/latest" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "wnpbridge/1.0.0" {
			t.Errorf("expected User-Agent=wnpbridge/1.0.0, got %s", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(gitHubRelease{
			TagName: tag,
			HTMLURL: "https://github.com/example/releases/tag/" + tag,
		})
	}
}

const repo = "keifufu/WebNowPlaying-Rainmeter"

func TestCompareSemver(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.0.1", "1.0.0", 1},
		{"1.9.0", "1.10.0", -1},
		{"1.10.0", "1.9.0", 1},
		{"2.0.0", "10.0.0", -1},
		{"1.0.0-rc1", "1.0.0", 0},
		{"1.0.0", "1.0.1-beta", -1},
		{"1.2.0+build123", "1.2.0", 0},
		{"1.2", "1.2.0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			got := compareSemver(tt.a, tt.b)
			if got != tt.want {
				t.Fatalf("compareSemver(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestLatest_HTTPMock(t *testing.T) {
	c := newTestChecker(t, releaseHandler(t, "v2.0.0", nil))

	rel, err := c.Latest(context.Background(), repo)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if rel.Latest != "2.0.0" {
		t.Fatalf("expected latest=2.0.0, got %s", rel.Latest)
	}
	if rel.ReleaseURL != "https://github.com/example/releases/tag/v2.0.0" {
		t.Fatalf("unexpected release URL: %s", rel.ReleaseURL)
	}
}

func TestOutdated(t *testing.T) {
	c := newTestChecker(t, releaseHandler(t, "v1.2.0", nil))
	tests := []struct {
		current string
		want    bool
	}{
		{"1.1.9", true},
		{"v1.1.0", true},
		{"1.2.0", false},
		{"1.3.0", false},
		{"", false},
	}
	for _, tt := range tests {
		got, _, err := c.Outdated(context.Background(), repo, tt.current)
		if err != nil {
			t.Fatalf("Outdated(%q): %v", tt.current, err)
		}
		if got != tt.want {
			t.Fatalf("Outdated(%q) = %v, want %v", tt.current, got, tt.want)
		}
	}
}

func TestLatest_CachesResult(t *testing.T) {
	var calls atomic.Int32
	c := newTestChecker(t, releaseHandler(t, "v2.0.0", &calls))

	for i := 0; i < 3; i++ {
		if _, err := c.Latest(context.Background(), repo); err != nil {
			t.Fatal(err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}
}

func TestLatest_ConcurrentCallsShareRequest(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := newTestChecker(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		json.NewEncoder(w).Encode(gitHubRelease{TagName: "v3.0.0"})
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Latest(context.Background(), repo)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}
}

func TestLatest_CancelledCallerDoesNotCacheFailure(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := newTestChecker(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		json.NewEncoder(w).Encode(gitHubRelease{TagName: "v3.0.0"})
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Latest(ctx, repo)
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)

	var rel Release
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rel, err = c.Latest(context.Background(), repo)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("expected release after cancelled caller, got %v", err)
	}
	if rel.Latest != "3.0.0" {
		t.Fatalf("Latest = %q, want 3.0.0", rel.Latest)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}
}

func TestLatest_HTTPErrorIsCached(t *testing.T) {
	var calls atomic.Int32
	c := newTestChecker(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Latest(context.Background(), repo)
	if !errors.Is(err, ErrLookupFailed) {
		t.Fatalf("expected ErrLookupFailed, got %v", err)
	}
	_, err = c.Latest(context.Background(), repo)
	if !errors.Is(err, ErrLookupFailed) {
		t.Fatalf("expected cached ErrLookupFailed, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected failure to be cached, got %d requests", n)
	}

	outdated, _, err := c.Outdated(context.Background(), repo, "0.0.1")
	if err == nil || outdated {
		t.Fatalf("expected unknown result on failure, got outdated=%v err=%v", outdated, err)
	}
}

func TestLatest_FailureExpires(t *testing.T) {
	var calls atomic.Int32
	c := newTestChecker(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Latest(context.Background(), repo)
	now = now.Add(failureTTL + time.Second)
	c.Latest(context.Background(), repo)

	if n := calls.Load(); n != 2 {
		t.Fatalf("expected retry after failure TTL, got %d requests", n)
	}
}

func TestLatest_MalformedJSON(t *testing.T) {
	c := newTestChecker(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>error page</html>"))
	})

	rel, err := c.Latest(context.Background(), repo)
	if !errors.Is(err, ErrLookupFailed) {
		t.Fatalf("expected ErrLookupFailed, got %v", err)
	}
	if rel.Latest != "" {
		t.Fatalf("expected empty latest, got %s", rel.Latest)
	}
}

func TestNewChecker_EnvOverride(t *testing.T) {
	t.Setenv("VERSION_CHECK_URL", "http://127.0.0.1:9999/")
	c := NewChecker("v1.0.0")
	if c.apiBase != "http://127.0.0.1:9999" {
		t.Fatalf("expected override, got %s", c.apiBase)
	}
	if c.userAgent != "wnpbridge/1.0.0" {
		t.Fatalf("unexpected user agent %s", c.userAgent)
	}
}
