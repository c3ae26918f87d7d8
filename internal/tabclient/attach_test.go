package tabclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wnpbridge/internal/httputil"
	"wnpbridge/internal/sites"
)

func policyServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/settings/sites" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testRegistry() *sites.Registry {
	yt := &sites.Site{Name: "YouTube", Match: sites.HostMatcher("youtube.com")}
	generic := &sites.Site{Name: "Generic"}
	return sites.NewRegistry(generic, yt)
}

func TestFetchPolicy(t *testing.T) {
	srv := policyServer(t, `{"disabled_sites":["Spotify"],"generic_enabled":true}`, http.StatusOK)

	p, err := FetchPolicy(context.Background(), httputil.NewClient(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"Spotify"}, p.DisabledSites)
	assert.True(t, p.GenericEnabled)
}

func TestFetchPolicy_Errors(t *testing.T) {
	_, err := FetchPolicy(context.Background(), httputil.NewClient(), "ftp://bridge")
	assert.Error(t, err)

	srv := policyServer(t, `{"error":"internal"}`, http.StatusInternalServerError)
	_, err = FetchPolicy(context.Background(), httputil.NewClient(), srv.URL)
	assert.ErrorContains(t, err, "500")

	srv = policyServer(t, `{bad`, http.StatusOK)
	_, err = FetchPolicy(context.Background(), httputil.NewClient(), srv.URL)
	assert.ErrorContains(t, err, "parse error")
}

func TestAttach_MatchesDedicatedSite(t *testing.T) {
	srv := policyServer(t, `{}`, http.StatusOK)

	c, err := Attach(context.Background(), srv.URL, "https://music.youtube.com/watch?v=1", testRegistry())
	require.NoError(t, err)
	agg, ok := c.player.(*sites.Aggregator)
	require.True(t, ok)
	assert.Equal(t, "YouTube", agg.Site().Name)
}

func TestAttach_RespectsPolicy(t *testing.T) {
	srv := policyServer(t, `{"disabled_sites":["youtube"],"generic_enabled":true}`, http.StatusOK)
	_, err := Attach(context.Background(), srv.URL, "https://www.youtube.com/", testRegistry())
	assert.ErrorIs(t, err, ErrNoSite)

	c, err := Attach(context.Background(), srv.URL, "https://radio.example/", testRegistry())
	require.NoError(t, err)
	assert.Equal(t, "Generic", c.player.(*sites.Aggregator).Site().Name)
}

func TestAttach_DefaultPolicyWhenBridgeFails(t *testing.T) {
	srv := policyServer(t, ``, http.StatusServiceUnavailable)

	_, err := Attach(context.Background(), srv.URL, "https://radio.example/", testRegistry())
	assert.ErrorIs(t, err, ErrNoSite, "generic player is off by default")

	_, err = Attach(context.Background(), srv.URL, "https://youtube.com/", testRegistry())
	assert.NoError(t, err)
}

