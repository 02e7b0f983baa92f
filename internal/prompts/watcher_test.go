package prompts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type dirLocator struct{ root string }

func (l dirLocator) Root() string { return l.root }

func (l dirLocator) Locate(path string) (Scope, Identity, bool) {
	rel, err := filepath.Rel(l.root, path)
	if err != nil || !strings.HasSuffix(rel, ".md") {
		return "", Identity{}, false
	}
	return ScopeBlueprint, BlueprintID(filepath.Dir(rel)), true
}

func TestWatcher_PublishesExternalChanges(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t)
	events := make(chan Event, 16)
	s.Subscribe(func(ev Event) { events <- ev })

	w, err := NewWatcher(s, dirLocator{root: root}, nil)
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

	dir := filepath.Join(root, "five-slide")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	// give the watcher time to pick up the new directory
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "v0001.md"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != EventExternalChange {
			t.Errorf("kind = %s, want %s", ev.Kind, EventExternalChange)
		}
		if ev.Identity != BlueprintID("five-slide") {
			t.Errorf("identity = %v", ev.Identity)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}
