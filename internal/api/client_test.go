package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			if r.Method == http.MethodPost && r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("missing content type")
			}
			w.Write([]byte(`{"status":"ok"}`))
		case "/csv":
			if r.Header.Get("Accept") != "text/csv" {
				t.Errorf("Accept = %q", r.Header.Get("Accept"))
			}
			w.Write([]byte("hook,slide_1\n"))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"client not found: acme"}`))
		default:
			http.Error(w, "plain failure", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL)
	ctx := context.Background()

	t.Run("get decodes json", func(t *testing.T) {
		var resp struct{ Status string }
		if err := c.Get(ctx, "/ok", &resp); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if resp.Status != "ok" {
			t.Errorf("Status = %q", resp.Status)
		}
	})

	t.Run("post", func(t *testing.T) {
		if err := c.Post(ctx, "/ok", map[string]string{"a": "b"}, nil); err != nil {
			t.Fatalf("Post() error = %v", err)
		}
	})

	t.Run("raw body", func(t *testing.T) {
		raw, err := c.PostRaw(ctx, "/csv", map[string]string{}, "text/csv")
		if err != nil {
			t.Fatalf("PostRaw() error = %v", err)
		}
		if string(raw) != "hook,slide_1\n" {
			t.Errorf("PostRaw() = %q", raw)
		}
	})

	t.Run("error response", func(t *testing.T) {
		err := c.Get(ctx, "/missing", nil)
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound || se.Message != "client not found: acme" {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("non json error", func(t *testing.T) {
		err := c.Delete(ctx, "/boom")
		if err == nil || !strings.Contains(err.Error(), "plain failure") {
			t.Fatalf("error = %v", err)
		}
	})
}

func TestOutputTo(t *testing.T) {
	data := map[string]any{"hooks": []string{"one"}}

	var buf bytes.Buffer
	if err := OutputTo(&buf, OutputFormatJSON, data); err != nil {
		t.Fatalf("OutputTo(json) error = %v", err)
	}
	var got map[string][]string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got["hooks"][0] != "one" {
		t.Errorf("json output = %s", buf.String())
	}

	buf.Reset()
	if err := OutputTo(&buf, OutputFormatYAML, data); err != nil {
		t.Fatalf("OutputTo(yaml) error = %v", err)
	}
	if buf.String() != "hooks:\n  - one\n" {
		t.Errorf("yaml output = %q", buf.String())
	}

	if err := OutputTo(&buf, "xml", data); err == nil {
		t.Error("expected error for unknown format")
	}
}

type fakeEndpoint struct{ method, path, use string }

func (e fakeEndpoint) Route() (string, string, http.HandlerFunc) {
	return e.method, e.path, func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(e.use)) }
}
func (e fakeEndpoint) RequiresInit() bool { return e.use == "gated" }
func (e fakeEndpoint) Command(func() string) *cobra.Command {
	return &cobra.Command{Use: e.use}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeEndpoint{"GET", "/health", "health"})
	r.Register(fakeEndpoint{"GET", "/api/prompts/{scope}", "list"})
	r.Register(fakeEndpoint{"POST", "/api/prompts/{scope}/versions", "gated"})

	t.Run("commands grouped by path", func(t *testing.T) {
		root := r.BuildCommands(func() string { return "" })
		var names []string
		for _, c := range root.Commands() {
			names = append(names, c.Name())
		}
		if strings.Join(names, ",") != "health,prompts" {
			t.Fatalf("top-level commands = %v", names)
		}
		prompts, _, err := root.Find([]string{"prompts", "gated"})
		if err != nil || prompts.Name() != "gated" {
			t.Errorf("Find(prompts gated) = %v, %v", prompts, err)
		}
	})

	t.Run("init middleware wraps gated routes", func(t *testing.T) {
		mux := http.NewServeMux()
		r.RegisterRoutes(mux, func(h http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/prompts/client/versions", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("gated route status = %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/prompts/client", nil))
		if rec.Body.String() != "list" {
			t.Errorf("open route body = %q", rec.Body.String())
		}
	})
}
