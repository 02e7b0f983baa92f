package fsstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/prompts/storetest"
)

func TestBackend(t *testing.T) {
	storetest.Run(t, func(t *testing.T) prompts.Backend {
		b, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		return b
	})
}

func TestBackend_Layout(t *testing.T) {
	root := t.TempDir()
	b, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s := prompts.NewStore(b, nil)
	ctx := context.Background()

	if _, err := s.Save(ctx, prompts.ScopeCampaign, prompts.CampaignID("acme", "launch"), prompts.FrontMatter{Audience: "teens"}, "## Goal\nsell"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := s.Save(ctx, prompts.ScopeCampaign, prompts.CampaignID("acme", "launch"), prompts.FrontMatter{}, "v2"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	dir := filepath.Join(root, "clients", "acme", "campaigns", "launch")
	data, err := os.ReadFile(filepath.Join(dir, "v0001.md"))
	if err != nil {
		t.Fatalf("version file missing: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "---\n") || !strings.Contains(text, "audience: teens") || !strings.HasSuffix(text, "---\n## Goal\nsell") {
		t.Errorf("unexpected file contents:\n%s", text)
	}

	active, err := os.ReadFile(filepath.Join(dir, "ACTIVE"))
	if err != nil {
		t.Fatalf("ACTIVE missing: %v", err)
	}
	if strings.TrimSpace(string(active)) != "2" {
		t.Errorf("ACTIVE = %q, want 2", active)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestBackend_MissingActivePointerFallsBackToLatest(t *testing.T) {
	root := t.TempDir()
	b, _ := New(root)
	s := prompts.NewStore(b, nil)
	ctx := context.Background()
	id := prompts.BlueprintID("five")

	for _, body := range []string{"one", "two"} {
		if _, err := s.Save(ctx, prompts.ScopeBlueprint, id, prompts.FrontMatter{}, body); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if err := os.Remove(filepath.Join(root, "blueprints", "five", "ACTIVE")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	doc, err := s.Load(ctx, prompts.ScopeBlueprint, id)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Active.Number != 2 || doc.Active.Body != "two" {
		t.Errorf("active = v%d %q, want v2 two", doc.Active.Number, doc.Active.Body)
	}
}

func TestBackend_Locate(t *testing.T) {
	b := &Backend{root: "/data"}
	tests := []struct {
		path  string
		scope prompts.Scope
		id    prompts.Identity
		ok    bool
	}{
		{"/data/global/v0001.md", prompts.ScopeGlobal, prompts.GlobalID(), true},
		{"/data/clients/acme/ACTIVE", prompts.ScopeClient, prompts.ClientID("acme"), true},
		{"/data/clients/acme/campaigns/launch/v0012.md", prompts.ScopeCampaign, prompts.CampaignID("acme", "launch"), true},
		{"/data/blueprints/five/v0001.md", prompts.ScopeBlueprint, prompts.BlueprintID("five"), true},
		{"/data/clients/acme/.v0001.md.tmp-123", "", prompts.Identity{}, false},
		{"/data/clients/acme/notes.txt", "", prompts.Identity{}, false},
		{"/elsewhere/global/v0001.md", "", prompts.Identity{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			scope, id, ok := b.Locate(tt.path)
			if ok != tt.ok || scope != tt.scope || id != tt.id {
				t.Errorf("Locate() = (%s, %v, %v), want (%s, %v, %v)", scope, id, ok, tt.scope, tt.id, tt.ok)
			}
		})
	}
}

func TestWatcher_SkipsStoreWrites(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"global", filepath.Join("blueprints", "ext")} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	b, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s := prompts.NewStore(b, nil)
	events := make(chan prompts.Event, 64)
	s.Subscribe(func(ev prompts.Event) { events <- ev })

	w, err := prompts.NewWatcher(s, b, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	if _, err := s.Save(ctx, prompts.ScopeGlobal, prompts.GlobalID(), prompts.FrontMatter{}, "rules"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// an outside edit to another document marks the end of the save's events
	if err := os.WriteFile(filepath.Join(root, "blueprints", "ext", "v0001.md"), []byte("---\n---\nx"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	counts := map[prompts.EventKind]int{}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			counts[ev.Kind]++
			if ev.Kind == prompts.EventExternalChange && ev.Scope == prompts.ScopeGlobal {
				t.Fatalf("store save reported as external change: %+v", ev)
			}
			if ev.Kind == prompts.EventExternalChange && ev.Identity == prompts.BlueprintID("ext") {
				if counts[prompts.EventSaved] != 1 {
					t.Errorf("saved events = %d, want 1", counts[prompts.EventSaved])
				}
				return
			}
		case <-timeout:
			t.Fatalf("outside edit not reported; events: %v", counts)
		}
	}
}
