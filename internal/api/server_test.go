package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/renderfetch/renderfetch/internal/config"
	"github.com/renderfetch/renderfetch/internal/metrics"
	"github.com/renderfetch/renderfetch/internal/render"
)

type fakeRenderer struct {
	html    string
	text    string
	article string
	err     error
	stats   render.Stats

	lastURL string
}

func (f *fakeRenderer) RawHTML(_ context.Context, url string) (string, error) {
	f.lastURL = url
	return f.html, f.err
}

func (f *fakeRenderer) VisibleText(_ context.Context, url string) (string, error) {
	f.lastURL = url
	return f.text, f.err
}

func (f *fakeRenderer) Article(_ context.Context, url string) (string, error) {
	f.lastURL = url
	return f.article, f.err
}

func (f *fakeRenderer) Stats() render.Stats {
	return f.stats
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, renderer Renderer, cfg config.Config) *httptest.Server {
	t.Helper()
	metrics.Init()
	srv := httptest.NewServer(NewServer(renderer, cfg, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_OperationSuccess(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{html: "<html><body>hi</body></html>", text: "hi", article: "article text"}
	srv := newTestServer(t, renderer, testConfig(t))

	var body struct {
		URL        string `json:"url"`
		Content    string `json:"content"`
		DurationMs *int64 `json:"duration_ms"`
	}
	status := getJSON(t, srv.URL+"/v1/html?url=https://example.com/", &body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://example.com/", body.URL)
	require.Equal(t, renderer.html, body.Content)
	require.NotNil(t, body.DurationMs)
	require.Equal(t, "https://example.com/", renderer.lastURL)

	status = getJSON(t, srv.URL+"/v1/text?url=https://example.com/", &body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "hi", body.Content)

	status = getJSON(t, srv.URL+"/v1/article?url=https://example.com/", &body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "article text", body.Content)
}

func TestServer_FailureMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"invalid input", render.Errorf(render.KindInvalidInput, "bad url"), http.StatusBadRequest, "invalid_input"},
		{"concurrency limit", render.Errorf(render.KindConcurrencyLimit, "at capacity"), http.StatusTooManyRequests, "concurrency_limit"},
		{"launch", render.Errorf(render.KindLaunch, "no browser"), http.StatusInternalServerError, "launch_error"},
		{"timeout", render.Errorf(render.KindTimeout, "deadline"), http.StatusInternalServerError, "timeout"},
		{"protocol", render.Errorf(render.KindProtocol, "lost session"), http.StatusInternalServerError, "protocol_error"},
		{"extraction", render.Errorf(render.KindExtraction, "no content"), http.StatusInternalServerError, "extraction_error"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, &fakeRenderer{err: tc.err}, testConfig(t))

			var body struct {
				Error string `json:"error"`
				Kind  string `json:"kind"`
			}
			status := getJSON(t, srv.URL+"/v1/html?url=https://example.com/", &body)
			require.Equal(t, tc.wantStatus, status)
			require.Equal(t, tc.wantKind, body.Kind)
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRenderer{}, testConfig(t))

	var body map[string]string
	status := getJSON(t, srv.URL+"/healthz", &body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestServer_Stats(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{stats: render.Stats{
		ActiveOperations: 3,
		MaxConcurrent:    10,
		InstanceHeld:     true,
	}}
	srv := newTestServer(t, renderer, testConfig(t))

	var body struct {
		Status           string `json:"status"`
		ActiveOperations int    `json:"active_operations"`
		MaxConcurrent    int    `json:"max_concurrent"`
		InstanceHeld     bool   `json:"instance_held"`
	}
	status := getJSON(t, srv.URL+"/stats", &body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body.Status)
	require.Equal(t, 3, body.ActiveOperations)
	require.Equal(t, 10, body.MaxConcurrent)
	require.True(t, body.InstanceHeld)
}

func TestServer_RequestIDHeader(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRenderer{}, testConfig(t))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sekrit"
	srv := newTestServer(t, &fakeRenderer{html: "ok"}, cfg)

	status := getJSON(t, srv.URL+"/v1/html?url=https://example.com/", nil)
	require.Equal(t, http.StatusForbidden, status)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/html?url=https://example.com/", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "sekrit")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status = getJSON(t, srv.URL+"/v1/html?url=https://example.com/&api_key=sekrit", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRenderer{}, testConfig(t))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
