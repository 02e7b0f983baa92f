package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/hookline/internal/config"
	"github.com/jackzampolin/hookline/internal/home"
	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/prompts/fsstore"
	"github.com/jackzampolin/hookline/internal/prompts/sqlstore"
	"github.com/jackzampolin/hookline/internal/social"
)

const testConfig = `
storage:
  backend: memory
llm_providers:
  mock:
    type: mock
    enabled: true
defaults:
  llm_provider: mock
server:
  host: 127.0.0.1
  port: "0"
  cors_origins:
    - http://localhost:3000
`

type noSocial struct{}

func (noSocial) FetchRecentPosts(ctx context.Context, handle string, depth int) ([]json.RawMessage, error) {
	return nil, nil
}

func (noSocial) FetchTrackDetails(ctx context.Context, id string) (*social.Track, error) {
	return nil, &prompts.NotFoundError{Resource: "track", ID: id}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	mgr, err := config.NewManager(cfgPath, dir)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	h, err := home.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(Config{ConfigManager: mgr, Home: h, Social: noSocial{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_RequiresConfigManager(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without a config manager")
	}
}

func TestServer_InitGate(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/prompts/client")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("before Init: status = %d, want 503", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health before Init: status = %d, want 200", resp.StatusCode)
	}

	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer s.Store().Close()

	body := strings.NewReader(`{"text":"cta_variant: hard\n## Voice\nloud"}`)
	resp, err = http.Post(ts.URL+"/api/prompts/client/versions?client=acme", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save: status = %d, want 201", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/merge", "application/json", bytes.NewReader([]byte(`{"client":"acme"}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var merged prompts.MergedPrompt
	if err := json.NewDecoder(resp.Body).Decode(&merged); err != nil {
		t.Fatal(err)
	}
	if merged.Body != "## Voice\nloud" || merged.FrontMatter["cta_variant"] != "hard" {
		t.Errorf("merged = %+v", merged)
	}

	if got := s.Registry().ListLLM(); len(got) != 1 || got[0] != "mock" {
		t.Errorf("providers = %v, want [mock]", got)
	}
}

func TestServer_CORS(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/merge", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/merge", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected origin allowed: %q", got)
	}
}

func TestRecovery(t *testing.T) {
	h := recovery(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal server error") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()
	h, _ := home.New(dir)

	tests := []struct {
		cfg   config.StorageCfg
		check func(prompts.Backend) bool
	}{
		{config.StorageCfg{Backend: "fs"}, func(b prompts.Backend) bool { _, ok := b.(*fsstore.Backend); return ok }},
		{config.StorageCfg{}, func(b prompts.Backend) bool { _, ok := b.(*fsstore.Backend); return ok }},
		{config.StorageCfg{Backend: "sqlite", Path: filepath.Join(dir, "t.db")}, func(b prompts.Backend) bool { _, ok := b.(*sqlstore.Backend); return ok }},
		{config.StorageCfg{Backend: "memory"}, func(b prompts.Backend) bool { _, ok := b.(*prompts.MemoryBackend); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Backend, func(t *testing.T) {
			b, err := OpenBackend(tt.cfg, h)
			if err != nil {
				t.Fatalf("OpenBackend() error = %v", err)
			}
			defer b.Close()
			if !tt.check(b) {
				t.Errorf("backend type %T", b)
			}
		})
	}

	if _, err := OpenBackend(config.StorageCfg{Backend: "postgres"}, h); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestServer_StartStop(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !s.IsRunning() {
		t.Fatal("server not running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	if s.IsRunning() {
		t.Error("server still running after shutdown")
	}
}
