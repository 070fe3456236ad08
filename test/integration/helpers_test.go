//go:build integration

// Package integration provides end-to-end tests for the webhook logger HTTP API
// running on the SQLite event log.
package integration

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/graaaaa/livekit-webhook-logger/internal/api"
	"github.com/graaaaa/livekit-webhook-logger/internal/app"
	"github.com/graaaaa/livekit-webhook-logger/internal/appinfo"
	"github.com/graaaaa/livekit-webhook-logger/internal/derive"
	"github.com/graaaaa/livekit-webhook-logger/internal/ingest"
	"github.com/graaaaa/livekit-webhook-logger/internal/signature"
	"github.com/graaaaa/livekit-webhook-logger/internal/store/sqlite"
)

const testSecret = "integration-secret"

// TestApp holds all dependencies for integration tests.
type TestApp struct {
	Server *httptest.Server
	Store  *sqlite.Store
	State  *derive.State
	Hub    *api.Hub
	DBPath string

	// Cleanup function to release resources
	cleanup func()
}

// NewTestApp creates a new test application with all dependencies wired up.
// Call Close when done to release resources.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	cfg := &testAppConfig{
		dbPath: filepath.Join(t.TempDir(), "events.sqlite"),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	st, err := sqlite.Open(cfg.dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	state := derive.New()
	hub := api.NewHub(api.WithHubLogger(logger))
	go hub.Run()

	pipeline := ingest.New(signature.NewVerifier(testSecret), st,
		ingest.WithLogger(logger),
		ingest.WithOnInsert("derive", state.Hook),
		ingest.WithOnInsert("stream", hub.Hook),
	)

	serverOpts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithReceiver(pipeline),
		api.WithLogsUsecase(app.LogsService{Store: st}),
		api.WithRoomsUsecase(app.RoomsService{State: state}),
		api.WithStatsUsecase(app.NewStatsService(st, app.WithRooms(state))),
		api.WithHub(hub),
	}
	if cfg.authEnabled {
		serverOpts = append(serverOpts, api.WithBasicAuth(cfg.username, cfg.password))
	}

	// Create server (addr is ignored for httptest)
	server := api.NewServer("127.0.0.1:0", app.HealthService{}, serverOpts...)
	ts := httptest.NewServer(server.Handler())

	cleanup := func() {
		hub.Stop()
		ts.Close()
		st.Close()
	}

	return &TestApp{
		Server:  ts,
		Store:   st,
		State:   state,
		Hub:     hub,
		DBPath:  cfg.dbPath,
		cleanup: cleanup,
	}
}

// Close releases all resources.
func (a *TestApp) Close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

// URL returns the base URL of the test server.
func (a *TestApp) URL() string {
	return a.Server.URL
}

// PostWebhook delivers body signed with the test secret.
func (a *TestApp) PostWebhook(t *testing.T, body string) *http.Response {
	t.Helper()
	return a.PostWebhookSigned(t, body, signature.Sign(testSecret, []byte(body)))
}

// PostWebhookSigned delivers body with an explicit signature header value.
func (a *TestApp) PostWebhookSigned(t *testing.T, body, sig string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, a.URL()+"/webhook", strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(appinfo.SignatureHeader, sig)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to make request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// testAppConfig holds configuration for test app.
type testAppConfig struct {
	authEnabled bool
	username    string
	password    string
	dbPath      string
}

// TestAppOption configures a test app.
type TestAppOption func(*testAppConfig)

// WithAuth enables operator authentication for the test app.
func WithAuth(username, password string) TestAppOption {
	return func(cfg *testAppConfig) {
		cfg.authEnabled = true
		cfg.username = username
		cfg.password = password
	}
}

// WithDBPath reuses an existing database file.
func WithDBPath(path string) TestAppOption {
	return func(cfg *testAppConfig) {
		cfg.dbPath = path
	}
}
