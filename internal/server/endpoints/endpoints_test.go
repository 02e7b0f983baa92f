package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/hookline/internal/api"
	"github.com/jackzampolin/hookline/internal/home"
	"github.com/jackzampolin/hookline/internal/hooks"
	"github.com/jackzampolin/hookline/internal/music"
	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/providers"
	"github.com/jackzampolin/hookline/internal/social"
	"github.com/jackzampolin/hookline/internal/svcctx"
)

// socialStub serves canned posts and tracks.
type socialStub struct {
	posts  map[string][]string
	tracks map[string]social.Track
}

func (s *socialStub) FetchRecentPosts(ctx context.Context, handle string, depth int) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for _, p := range s.posts[handle] {
		out = append(out, json.RawMessage(p))
	}
	return out, nil
}

func (s *socialStub) FetchTrackDetails(ctx context.Context, id string) (*social.Track, error) {
	t, ok := s.tracks[id]
	if !ok {
		return nil, &prompts.NotFoundError{Resource: "track", ID: id}
	}
	return &t, nil
}

type testEnv struct {
	ts    *httptest.Server
	store *prompts.Store
	mock  *providers.MockClient
	home  *home.Dir
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := prompts.NewStore(prompts.NewMemoryBackend(), nil)
	t.Cleanup(func() { store.Close() })

	mock := providers.NewMockClient()
	registry := providers.NewRegistry()
	registry.RegisterLLM("mock", mock)

	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}

	stub := &socialStub{
		posts: map[string][]string{
			"alice": {
				`{"aweme_id":"1","music_id":"a","create_time":1700000100}`,
				`{"aweme_id":"2","music_id":"a","create_time":1700000200}`,
			},
			"bob": {`{"aweme_id":"3","music_id":"b","create_time":1700000300}`},
		},
		tracks: map[string]social.Track{
			"a": {ID: "a", Title: "Track A", UserCount: 5},
			"b": {ID: "b", Title: "Track B", UserCount: 50},
		},
	}

	merger := prompts.NewMerger(store)
	services := &svcctx.Services{
		Store:    store,
		Merger:   merger,
		Hooks:    hooks.NewService(merger, store, registry, hooks.Config{Provider: "mock", HookCount: 3}, nil),
		Scanner:  music.NewScanner(stub, store, music.DefaultConfig(), nil),
		Registry: registry,
		Home:     h,
	}

	reg := api.NewRegistry()
	for _, ep := range All(Config{SwaggerSpecPath: "testdata/missing.json"}) {
		reg.Register(ep)
	}
	mux := http.NewServeMux()
	reg.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc { return next })

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), services)))
	}))
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: store, mock: mock, home: h}
}

// do sends a request and decodes a JSON response into out when out is not nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var health HealthResponse
	if code := env.do(t, "GET", "/health", nil, &health); code != http.StatusOK || health.Status != "ok" {
		t.Errorf("/health = %d %+v", code, health)
	}
	var ready HealthResponse
	if code := env.do(t, "GET", "/ready", nil, &ready); code != http.StatusOK || ready.Store != "ok" {
		t.Errorf("/ready = %d %+v", code, ready)
	}
	var status StatusResponse
	if code := env.do(t, "GET", "/status", nil, &status); code != http.StatusOK {
		t.Fatalf("/status = %d", code)
	}
	if diff := cmp.Diff([]string{"mock"}, status.Providers); diff != "" {
		t.Errorf("providers mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	const acme = "?client=acme"

	var v1 prompts.Version
	code := env.do(t, "POST", "/api/prompts/client/versions"+acme,
		SaveVersionRequest{Text: "tone_strength: 3\nbanned_words: cheap, free\n## Voice\nplayful"}, &v1)
	if code != http.StatusCreated {
		t.Fatalf("save v1 = %d", code)
	}
	if v1.Number != 1 || v1.Status != prompts.StatusActive {
		t.Errorf("v1 = %+v", v1)
	}
	if diff := cmp.Diff(prompts.StringList{"cheap", "free"}, v1.FrontMatter.BannedWords); diff != "" {
		t.Errorf("banned words mismatch (-want +got):\n%s", diff)
	}

	var v2 prompts.Version
	code = env.do(t, "POST", "/api/prompts/client/versions"+acme,
		SaveVersionRequest{Body: "## Voice\nserious"}, &v2)
	if code != http.StatusCreated || v2.Number != 2 {
		t.Fatalf("save v2 = %d %+v", code, v2)
	}

	t.Run("load and list", func(t *testing.T) {
		var doc prompts.Document
		if code := env.do(t, "GET", "/api/prompts/client/document"+acme, nil, &doc); code != http.StatusOK {
			t.Fatalf("load = %d", code)
		}
		if doc.Active.Number != 2 || len(doc.Versions) != 2 {
			t.Errorf("doc = %+v", doc)
		}

		var list ListDocumentsResponse
		env.do(t, "GET", "/api/prompts/client", nil, &list)
		if diff := cmp.Diff([]prompts.Identity{prompts.ClientID("acme")}, list.Documents); diff != "" {
			t.Errorf("list mismatch (-want +got):\n%s", diff)
		}

		var versions VersionsResponse
		env.do(t, "GET", "/api/prompts/client/versions"+acme, nil, &versions)
		if len(versions.Versions) != 2 || versions.Versions[0].Number != 2 {
			t.Errorf("versions = %+v", versions.Versions)
		}
	})

	t.Run("activate older version", func(t *testing.T) {
		var doc prompts.Document
		if code := env.do(t, "POST", "/api/prompts/client/versions/1/activate"+acme, nil, &doc); code != http.StatusOK {
			t.Fatalf("activate = %d", code)
		}
		if doc.Active.Number != 1 || len(doc.Versions) != 2 {
			t.Errorf("doc = %+v", doc)
		}
	})

	t.Run("diff and sections", func(t *testing.T) {
		var diff DiffResponse
		if code := env.do(t, "GET", "/api/prompts/client/diff"+acme+"&from=1&to=2", nil, &diff); code != http.StatusOK {
			t.Fatalf("diff = %d", code)
		}
		if !strings.Contains(diff.Diff, "-playful") || !strings.Contains(diff.Diff, "+serious") {
			t.Errorf("diff = %q", diff.Diff)
		}

		var sections SectionsResponse
		env.do(t, "GET", "/api/prompts/client/sections"+acme+"&version=2", nil, &sections)
		want := []prompts.Section{{Title: "Voice", Content: "serious"}}
		if diff := cmp.Diff(want, sections.Sections); diff != "" {
			t.Errorf("sections mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("rename and conflict", func(t *testing.T) {
		env.do(t, "POST", "/api/prompts/client/versions?client=other", SaveVersionRequest{Body: "x"}, nil)

		var resp RenameResponse
		if code := env.do(t, "POST", "/api/prompts/client/rename"+acme, RenameRequest{NewName: "acme2"}, &resp); code != http.StatusOK {
			t.Fatalf("rename = %d", code)
		}
		if resp.Identity.Client != "acme2" {
			t.Errorf("renamed to %+v", resp.Identity)
		}
		if code := env.do(t, "POST", "/api/prompts/client/rename?client=acme2", RenameRequest{NewName: "other"}, nil); code != http.StatusConflict {
			t.Errorf("rename onto existing = %d, want 409", code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if code := env.do(t, "DELETE", "/api/prompts/client/document?client=acme2", nil, nil); code != http.StatusNoContent {
			t.Fatalf("delete = %d", code)
		}
		if code := env.do(t, "GET", "/api/prompts/client/document?client=acme2", nil, nil); code != http.StatusNotFound {
			t.Errorf("load after delete = %d, want 404", code)
		}
	})
}

func TestDocumentErrors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown scope", "GET", "/api/prompts/bogus/document", nil, http.StatusBadRequest},
		{"missing client", "GET", "/api/prompts/client/document", nil, http.StatusBadRequest},
		{"campaign without client", "GET", "/api/prompts/campaign/document?campaign=x", nil, http.StatusBadRequest},
		{"never saved", "GET", "/api/prompts/client/document?client=ghost", nil, http.StatusNotFound},
		{"bad version", "GET", "/api/prompts/client/versions/zero?client=ghost", nil, http.StatusBadRequest},
		{"missing version", "GET", "/api/prompts/client/versions/3?client=ghost", nil, http.StatusNotFound},
		{"rename without name", "POST", "/api/prompts/client/rename?client=ghost", RenameRequest{}, http.StatusBadRequest},
		{"text and body", "POST", "/api/prompts/client/versions?client=x", SaveVersionRequest{Text: "a", Body: "b"}, http.StatusBadRequest},
		{"diff without versions", "GET", "/api/prompts/global/diff", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			if code := env.do(t, tt.method, tt.path, tt.body, &resp); code != tt.want {
				t.Errorf("status = %d, want %d (%s)", code, tt.want, resp.Error)
			}
			if resp.Error == "" {
				t.Error("expected an error message")
			}
		})
	}

	t.Run("never saved has no versions", func(t *testing.T) {
		var resp VersionsResponse
		if code := env.do(t, "GET", "/api/prompts/client/versions?client=ghost", nil, &resp); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if resp.Versions == nil || len(resp.Versions) != 0 {
			t.Errorf("versions = %#v, want empty", resp.Versions)
		}
	})
}

func TestMergeEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/api/prompts/global/versions", SaveVersionRequest{Text: "## Rules\nbe brief"}, nil)
	env.do(t, "POST", "/api/prompts/client/versions?client=acme",
		SaveVersionRequest{Text: "cta_variant: soft\n## Voice\ntalk to {{ audience }} about {{product}}"}, nil)

	var merged prompts.MergedPrompt
	code := env.do(t, "POST", "/api/merge", prompts.MergeRequest{
		Client:    "acme",
		Variables: map[string]any{"audience": "parents"},
	}, &merged)
	if code != http.StatusOK {
		t.Fatalf("merge = %d", code)
	}
	want := "## Rules\nbe brief\n\n## Voice\ntalk to parents about {{product}}"
	if merged.Body != want {
		t.Errorf("body = %q, want %q", merged.Body, want)
	}
	if merged.FrontMatter["cta_variant"] != "soft" {
		t.Errorf("front matter = %v", merged.FrontMatter)
	}
	if diff := cmp.Diff([]string{"product"}, merged.Unresolved); diff != "" {
		t.Errorf("unresolved mismatch (-want +got):\n%s", diff)
	}

	if code := env.do(t, "POST", "/api/merge", prompts.MergeRequest{Campaign: "launch"}, nil); code != http.StatusBadRequest {
		t.Errorf("campaign without client = %d, want 400", code)
	}
	if code := env.do(t, "POST", "/api/merge", prompts.MergeRequest{Client: "acme", Pins: prompts.Pins{Client: 9}}, nil); code != http.StatusNotFound {
		t.Errorf("missing pinned version = %d, want 404", code)
	}
}

func TestHooksEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/api/prompts/client/versions?client=acme", SaveVersionRequest{Text: "## Voice\nplayful"}, nil)

	t.Run("generate", func(t *testing.T) {
		env.mock.ResponseText = `{"hooks":["one","two","two"]}`
		var res hooks.GenerateResult
		code := env.do(t, "POST", "/api/hooks/generate",
			GenerateHooksRequest{hooks.GenerateRequest{MergeRequest: prompts.MergeRequest{Client: "acme"}}}, &res)
		if code != http.StatusOK {
			t.Fatalf("generate = %d", code)
		}
		if diff := cmp.Diff([]string{"one", "two"}, res.Hooks); diff != "" {
			t.Errorf("hooks mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("generate backend failure", func(t *testing.T) {
		env.mock.ShouldFail = true
		defer func() { env.mock.ShouldFail = false }()
		var resp ErrorResponse
		code := env.do(t, "POST", "/api/hooks/generate", GenerateHooksRequest{}, &resp)
		if code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", code)
		}
		if !strings.Contains(resp.Error, "mock client configured to fail") {
			t.Errorf("error = %q", resp.Error)
		}
	})

	rowsJSON := `{"rows":[
		{"hook":"one","slide_1":"a","slide_2":"b","slide_3":"","slide_4":"","slide_5":""},
		{"hook":"two","slide_1":"c","slide_2":"","slide_3":"","slide_4":"","slide_5":""}]}`
	req := ExpandHooksRequest{hooks.ExpandRequest{
		MergeRequest: prompts.MergeRequest{Client: "acme"},
		Hooks:        []string{"one", "two"},
	}}

	t.Run("expand json", func(t *testing.T) {
		env.mock.ResponseText = rowsJSON
		var res ExpandHooksResponse
		if code := env.do(t, "POST", "/api/hooks/expand", req, &res); code != http.StatusOK {
			t.Fatalf("expand = %d", code)
		}
		if len(res.Rows) != 2 || res.Rows[0].Slide2 != "b" || res.Rows[1].Hook != "two" {
			t.Errorf("rows = %+v", res.Rows)
		}
		if res.ExportPath != "" {
			t.Errorf("unexpected export %s", res.ExportPath)
		}
	})

	t.Run("expand csv", func(t *testing.T) {
		env.mock.ResponseText = rowsJSON
		data, err := api.NewClient(env.ts.URL).PostRaw(context.Background(), "/api/hooks/expand", req, "text/csv")
		if err != nil {
			t.Fatalf("PostRaw() error = %v", err)
		}
		want := "hook,slide_1,slide_2,slide_3,slide_4,slide_5\none,a,b,,,\ntwo,c,,,,\n"
		if string(data) != want {
			t.Errorf("csv = %q, want %q", data, want)
		}
	})

	t.Run("expand export", func(t *testing.T) {
		env.mock.ResponseText = rowsJSON
		var res ExpandHooksResponse
		if code := env.do(t, "POST", "/api/hooks/expand?export=true", req, &res); code != http.StatusOK {
			t.Fatalf("expand = %d", code)
		}
		want := fmt.Sprintf("%s/acme-%s.csv", env.home.ExportsDir(), res.RunID)
		if res.ExportPath != want {
			t.Errorf("export path = %s, want %s", res.ExportPath, want)
		}
		data, err := os.ReadFile(res.ExportPath)
		if err != nil {
			t.Fatalf("read export: %v", err)
		}
		if !strings.HasPrefix(string(data), "hook,slide_1") {
			t.Errorf("export = %q", data)
		}
	})

	t.Run("expand validation", func(t *testing.T) {
		before := env.mock.RequestCount()
		if code := env.do(t, "POST", "/api/hooks/expand", ExpandHooksRequest{}, nil); code != http.StatusBadRequest {
			t.Errorf("no hooks = %d, want 400", code)
		}
		if env.mock.RequestCount() != before {
			t.Error("backend called for an invalid request")
		}
	})
}

func TestMusicEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("scan handles", func(t *testing.T) {
		var res music.Result
		if code := env.do(t, "POST", "/api/music/scan", ScanRequest{Handles: []string{"@alice", "bob"}}, &res); code != http.StatusOK {
			t.Fatalf("scan = %d", code)
		}
		var got []string
		for _, e := range res.Entries {
			got = append(got, fmt.Sprintf("%s:%d", e.Track.ID, e.LocalUsageCount))
		}
		if diff := cmp.Diff([]string{"b:1", "a:2"}, got); diff != "" {
			t.Errorf("entries mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("scan rejected", func(t *testing.T) {
		tests := []struct {
			name string
			req  ScanRequest
		}{
			{"nothing to scan", ScanRequest{}},
			{"handles and campaign", ScanRequest{Handles: []string{"a"}, Client: "acme", Campaign: "launch"}},
			{"campaign without client", ScanRequest{Campaign: "launch"}},
			{"over cost ceiling", ScanRequest{Handles: manyHandles(50), Depth: 10}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if code := env.do(t, "POST", "/api/music/scan", tt.req, nil); code != http.StatusBadRequest {
					t.Errorf("status = %d, want 400", code)
				}
			})
		}
	})

	t.Run("scan campaign and save", func(t *testing.T) {
		env.do(t, "POST", "/api/prompts/campaign/versions?client=acme&campaign=launch",
			SaveVersionRequest{Text: "tracked_accounts: alice, bob\n## Notes\nsummer"}, nil)

		var res music.Result
		if code := env.do(t, "POST", "/api/music/scan", ScanRequest{Client: "acme", Campaign: "launch"}, &res); code != http.StatusOK {
			t.Fatalf("scan = %d", code)
		}
		if len(res.Entries) != 2 {
			t.Fatalf("entries = %+v", res.Entries)
		}

		var v prompts.Version
		code := env.do(t, "POST", "/api/music/save",
			SaveTrackRequest{Client: "acme", Campaign: "launch", Entry: res.Entries[0]}, &v)
		if code != http.StatusCreated {
			t.Fatalf("save = %d", code)
		}
		if v.Number != 2 || len(v.FrontMatter.SavedTracks) != 1 || v.FrontMatter.SavedTracks[0].ID != "b" {
			t.Errorf("version = %+v", v)
		}
		if v.Body != "## Notes\nsummer" {
			t.Errorf("body changed: %q", v.Body)
		}
	})

	t.Run("save to missing campaign", func(t *testing.T) {
		req := SaveTrackRequest{Client: "acme", Campaign: "ghost", Entry: music.Entry{Track: social.Track{ID: "a"}}}
		if code := env.do(t, "POST", "/api/music/save", req, nil); code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", code)
		}
	})
}

func TestSwaggerRouteSpec(t *testing.T) {
	env := newTestEnv(t)
	var spec struct {
		Paths map[string]map[string]any `json:"paths"`
	}
	if code := env.do(t, "GET", "/swagger.json", nil, &spec); code != http.StatusOK {
		t.Fatalf("swagger.json = %d", code)
	}
	for _, path := range []string{"/api/merge", "/api/prompts/{scope}/versions", "/api/music/scan"} {
		if _, ok := spec.Paths[path]; !ok {
			t.Errorf("route spec missing %s", path)
		}
	}
	if _, ok := spec.Paths["/api/prompts/{scope}/versions"]["post"]; !ok {
		t.Error("route spec missing POST versions")
	}
}

func manyHandles(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user%d", i)
	}
	return out
}
