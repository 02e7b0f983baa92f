// Package storetest runs the same document store checks against any
// prompts.Backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/jackzampolin/hookline/internal/prompts"
)

// Run exercises a backend through a prompts.Store. newBackend is called once
// per subtest and must return an empty backend.
func Run(t *testing.T, newBackend func(t *testing.T) prompts.Backend) {
	t.Helper()

	newStore := func(t *testing.T) *prompts.Store {
		b := newBackend(t)
		t.Cleanup(func() { b.Close() })
		return prompts.NewStore(b, nil)
	}

	t.Run("version numbers increase from one", func(t *testing.T) {
		testMonotonic(t, newStore(t))
	})
	t.Run("exactly one active version", func(t *testing.T) {
		testSingleActive(t, newStore(t))
	})
	t.Run("save then load round-trips", func(t *testing.T) {
		testRoundTrip(t, newStore(t))
	})
	t.Run("missing documents and versions", func(t *testing.T) {
		testNotFound(t, newStore(t))
	})
	t.Run("rename", func(t *testing.T) {
		testRename(t, newStore(t))
	})
	t.Run("delete", func(t *testing.T) {
		testDelete(t, newStore(t))
	})
	t.Run("list", func(t *testing.T) {
		testList(t, newStore(t))
	})
	t.Run("concurrent saves", func(t *testing.T) {
		testConcurrentSaves(t, newStore(t))
	})
}

func mustSave(t *testing.T, s *prompts.Store, scope prompts.Scope, id prompts.Identity, body string) *prompts.Version {
	t.Helper()
	v, err := s.Save(context.Background(), scope, id, prompts.FrontMatter{}, body)
	if err != nil {
		t.Fatalf("Save(%s) error = %v", id.Key(scope), err)
	}
	return v
}

func activeCount(t *testing.T, s *prompts.Store, scope prompts.Scope, id prompts.Identity) int {
	t.Helper()
	metas, err := s.ListVersions(context.Background(), scope, id)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	n := 0
	for _, m := range metas {
		if m.Status == prompts.StatusActive {
			n++
		}
	}
	return n
}

func testMonotonic(t *testing.T, s *prompts.Store) {
	ctx := context.Background()
	id := prompts.ClientID("acme")
	for i := 1; i <= 5; i++ {
		v := mustSave(t, s, prompts.ScopeClient, id, fmt.Sprintf("body %d", i))
		if v.Number != i {
			t.Fatalf("save %d got version %d", i, v.Number)
		}
		if v.Status != prompts.StatusActive {
			t.Errorf("new version status = %s, want active", v.Status)
		}
	}

	metas, err := s.ListVersions(ctx, prompts.ScopeClient, id)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	var got []int
	for _, m := range metas {
		got = append(got, m.Number)
	}
	if diff := cmp.Diff([]int{5, 4, 3, 2, 1}, got); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}

	// activating an old version does not create one
	if err := s.Activate(ctx, prompts.ScopeClient, id, 2); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	v := mustSave(t, s, prompts.ScopeClient, id, "after activate")
	if v.Number != 6 {
		t.Errorf("save after activate got version %d, want 6", v.Number)
	}
}

func testSingleActive(t *testing.T, s *prompts.Store) {
	ctx := context.Background()
	id := prompts.CampaignID("acme", "launch")
	for i := 0; i < 3; i++ {
		mustSave(t, s, prompts.ScopeCampaign, id, "x")
		if n := activeCount(t, s, prompts.ScopeCampaign, id); n != 1 {
			t.Fatalf("after save %d: %d active versions", i+1, n)
		}
	}
	for _, n := range []int{1, 3, 2} {
		if err := s.Activate(ctx, prompts.ScopeCampaign, id, n); err != nil {
			t.Fatalf("Activate(%d) error = %v", n, err)
		}
		if c := activeCount(t, s, prompts.ScopeCampaign, id); c != 1 {
			t.Fatalf("after activate %d: %d active versions", n, c)
		}
		doc, err := s.Load(ctx, prompts.ScopeCampaign, id)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if doc.Active.Number != n {
			t.Errorf("active = %d, want %d", doc.Active.Number, n)
		}
	}
	metas, _ := s.ListVersions(ctx, prompts.ScopeCampaign, id)
	if len(metas) != 3 {
		t.Errorf("activate created versions: got %d, want 3", len(metas))
	}
}

func testRoundTrip(t *testing.T, s *prompts.Store) {
	ctx := context.Background()
	id := prompts.CampaignID("acme", "spring drop")
	fm := prompts.FrontMatter{
		Audience:          "18-25",
		RageBaitIntensity: prompts.Int(40),
		CampaignNotes:     "keep it short",
		TrackedAccounts:   prompts.StringList{"alpha", "beta"},
		ImageBuckets:      map[string]any{"hero": "bucket-a"},
		SavedTracks: []prompts.SavedTrack{{
			ID:         "7001",
			Title:      "Song",
			Author:     "Band",
			UserCount:  120,
			LocalUsage: 3,
			SoundURL:   "https://example.com/s/7001",
			SourceVideos: []prompts.SourceVideo{
				{PostID: "p1", AuthorHandle: "alpha", URL: "https://example.com/p1"},
			},
			SavedAt: "2026-01-02T03:04:05Z",
		}},
		Custom: map[string]any{"hook_style": "question", "max_words": 12},
	}
	body := "## Goal\nSell the thing.\n\n## Notes\n{{product}} first.\n"

	saved, err := s.Save(ctx, prompts.ScopeCampaign, id, fm, body)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	doc, err := s.Load(ctx, prompts.ScopeCampaign, id)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	opts := cmpopts.EquateEmpty()
	if diff := cmp.Diff(fm, doc.Active.FrontMatter, opts); diff != "" {
		t.Errorf("front matter mismatch (-want +got):\n%s", diff)
	}
	if doc.Active.Body != body {
		t.Errorf("body = %q, want %q", doc.Active.Body, body)
	}
	if !doc.Active.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("created_at = %v, want %v", doc.Active.CreatedAt, saved.CreatedAt)
	}

	v, err := s.LoadVersion(ctx, prompts.ScopeCampaign, id, 1)
	if err != nil {
		t.Fatalf("LoadVersion() error = %v", err)
	}
	if diff := cmp.Diff(fm, v.FrontMatter, opts); diff != "" {
		t.Errorf("LoadVersion front matter mismatch (-want +got):\n%s", diff)
	}

	// CRLF line endings survive every backend
	crlfBody := "line one\r\nline two\r\n"
	if _, err := s.Save(ctx, prompts.ScopeClient, prompts.ClientID("acme"), prompts.FrontMatter{CTAVariant: prompts.CTASoft}, crlfBody); err != nil {
		t.Fatalf("Save(crlf) error = %v", err)
	}
	cdoc, err := s.Load(ctx, prompts.ScopeClient, prompts.ClientID("acme"))
	if err != nil {
		t.Fatalf("Load(crlf) error = %v", err)
	}
	if cdoc.Active.Body != crlfBody {
		t.Errorf("crlf body = %q, want %q", cdoc.Active.Body, crlfBody)
	}

	// global documents keep front matter too
	gfm := prompts.FrontMatter{Custom: map[string]any{"a": 1}}
	if _, err := s.Save(ctx, prompts.ScopeGlobal, prompts.GlobalID(), gfm, "G"); err != nil {
		t.Fatalf("Save(global) error = %v", err)
	}
	g, err := s.Load(ctx, prompts.ScopeGlobal, prompts.GlobalID())
	if err != nil {
		t.Fatalf("Load(global) error = %v", err)
	}
	if diff := cmp.Diff(gfm, g.Active.FrontMatter, opts); diff != "" {
		t.Errorf("global front matter mismatch (-want +got):\n%s", diff)
	}
}

func testNotFound(t *testing.T, s *prompts.Store) {
	ctx := context.Background()
	id := prompts.BlueprintID("five-slide")

	if _, err := s.Load(ctx, prompts.ScopeBlueprint, id); !errors.Is(err, prompts.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
	metas, err := s.ListVersions(ctx, prompts.ScopeBlueprint, id)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if len(metas) != 0 {
		t.Errorf("ListVersions() = %v, want empty", metas)
	}

	mustSave(t, s, prompts.ScopeBlueprint, id, "slides")
	if _, err := s.LoadVersion(ctx, prompts.ScopeBlueprint, id, 9); !errors.Is(err, prompts.ErrNotFound) {
		t.Errorf("LoadVersion(9) error = %v, want ErrNotFound", err)
	}
	if err := s.Activate(ctx, prompts.ScopeBlueprint, id, 9); !errors.Is(err, prompts.ErrNotFound) {
		t.Errorf("Activate(9) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Save(ctx, prompts.ScopeCampaign, prompts.CampaignID("", "orphan"), prompts.FrontMatter{}, "x"); !errors.Is(err, prompts.ErrInvalidArgument) {
		t.Errorf("Save(campaign without client) error = %v, want ErrInvalidArgument", err)
	}
}

func testRename(t *testing.T, s *prompts.Store) {
	ctx := context.Background()
	mustSave(t, s, prompts.ScopeClient, prompts.ClientID("acme"), "acme v1")
	mustSave(t, s, prompts.ScopeClient, prompts.ClientID("acme"), "acme v2")
	mustSave(t, s, prompts.ScopeCampaign, prompts.CampaignID("acme", "launch"), "launch")
	mustSave(t, s, prompts.ScopeClient, prompts.ClientID("globex"), "globex")

	if _, err := s.Rename(ctx, prompts.ScopeClient, prompts.ClientID("acme"), "globex"); !errors.Is(err, prompts.ErrConflict) {
		t.Errorf("Rename onto existing error = %v, want ErrConflict", err)
	}
	if _, err := s.Rename(ctx, prompts.ScopeClient, prompts.ClientID("nobody"), "somebody"); !errors.Is(err, prompts.ErrNotFound) {
		t.Errorf("Rename missing error = %v, want ErrNotFound", err)
	}

	to, err := s.Rename(ctx, prompts.ScopeClient, prompts.ClientID("acme"), "acme-co")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if to != prompts.ClientID("acme-co") {
		t.Errorf("Rename() = %v", to)
	}
	doc, err := s.Load(ctx, prompts.ScopeClient, to)
	if err != nil {
		t.Fatalf("Load(renamed) error = %v", err)
	}
	if doc.Active.Number != 2 || doc.Active.Body != "acme v2" || len(doc.Versions) != 2 {
		t.Errorf("renamed document lost history: %+v", doc)
	}
	if _, err := s.Load(ctx, prompts.ScopeCampaign, prompts.CampaignID("acme-co", "launch")); err != nil {
		t.Errorf("campaign did not follow its client: %v", err)
	}
	if _, err := s.Load(ctx, prompts.ScopeClient, prompts.ClientID("acme")); !errors.Is(err, prompts.ErrNotFound) {
		t.Errorf("old name still loads: %v", err)
	}

	if _, err := s.Rename(ctx, prompts.ScopeCampaign, prompts.CampaignID("acme-co", "launch"), "relaunch"); err != nil {
		t.Fatalf("Rename(campaign) error = %v", err)
	}
	if _, err := s.Load(ctx, prompts.ScopeCampaign, prompts.CampaignID("acme-co", "relaunch")); err != nil {
		t.Errorf("Load(renamed campaign) error = %v", err)
	}
	if _, err := s.Rename(ctx, prompts.ScopeGlobal, prompts.GlobalID(), "x"); !errors.Is(err, prompts.ErrInvalidArgument) {
		t.Errorf("Rename(global) error = %v, want ErrInvalidArgument", err)
	}
}

func testDelete(t *testing.T, s *prompts.Store) {
	ctx := context.Background()
	mustSave(t, s, prompts.ScopeClient, prompts.ClientID("acme"), "a")
	mustSave(t, s, prompts.ScopeClient, prompts.ClientID("acme"), "b")
	mustSave(t, s, prompts.ScopeCampaign, prompts.CampaignID("acme", "launch"), "c")

	if err := s.Delete(ctx, prompts.ScopeClient, prompts.ClientID("acme")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, prompts.ScopeClient, prompts.ClientID("acme")); !errors.Is(err, prompts.ErrNotFound) {
		t.Errorf("Load(deleted) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Load(ctx, prompts.ScopeCampaign, prompts.CampaignID("acme", "launch")); !errors.Is(err, prompts.ErrNotFound) {
		t.Errorf("campaign survived client delete: %v", err)
	}
	if err := s.Delete(ctx, prompts.ScopeClient, prompts.ClientID("acme")); !errors.Is(err, prompts.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	v := mustSave(t, s, prompts.ScopeClient, prompts.ClientID("acme"), "fresh")
	if v.Number != 1 {
		t.Errorf("save after delete got version %d, want 1", v.Number)
	}
}

func testList(t *testing.T, s *prompts.Store) {
	ctx := context.Background()
	mustSave(t, s, prompts.ScopeClient, prompts.ClientID("globex"), "g")
	mustSave(t, s, prompts.ScopeClient, prompts.ClientID("acme"), "a")
	mustSave(t, s, prompts.ScopeCampaign, prompts.CampaignID("acme", "launch"), "l")
	mustSave(t, s, prompts.ScopeCampaign, prompts.CampaignID("acme", "fall"), "f")
	mustSave(t, s, prompts.ScopeCampaign, prompts.CampaignID("globex", "promo"), "p")
	mustSave(t, s, prompts.ScopeBlueprint, prompts.BlueprintID("five-slide"), "b")

	clients, err := s.List(ctx, prompts.ScopeClient, "")
	if err != nil {
		t.Fatalf("List(client) error = %v", err)
	}
	if diff := cmp.Diff([]prompts.Identity{prompts.ClientID("acme"), prompts.ClientID("globex")}, clients); diff != "" {
		t.Errorf("clients mismatch (-want +got):\n%s", diff)
	}

	campaigns, err := s.List(ctx, prompts.ScopeCampaign, "acme")
	if err != nil {
		t.Fatalf("List(campaign) error = %v", err)
	}
	want := []prompts.Identity{prompts.CampaignID("acme", "fall"), prompts.CampaignID("acme", "launch")}
	if diff := cmp.Diff(want, campaigns); diff != "" {
		t.Errorf("campaigns mismatch (-want +got):\n%s", diff)
	}

	blueprints, err := s.List(ctx, prompts.ScopeBlueprint, "")
	if err != nil {
		t.Fatalf("List(blueprint) error = %v", err)
	}
	if diff := cmp.Diff([]prompts.Identity{prompts.BlueprintID("five-slide")}, blueprints); diff != "" {
		t.Errorf("blueprints mismatch (-want +got):\n%s", diff)
	}
}

func testConcurrentSaves(t *testing.T, s *prompts.Store) {
	ctx := context.Background()
	id := prompts.ClientID("busy")
	const n = 20

	var wg sync.WaitGroup
	numbers := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.Save(ctx, prompts.ScopeClient, id, prompts.FrontMatter{}, fmt.Sprintf("writer %d", i))
			errs[i] = err
			if v != nil {
				numbers[i] = v.Number
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}
	sort.Ints(numbers)
	for i, got := range numbers {
		if got != i+1 {
			t.Fatalf("version numbers %v have a gap or repeat", numbers)
		}
	}
	if c := activeCount(t, s, prompts.ScopeClient, id); c != 1 {
		t.Errorf("%d active versions after concurrent saves", c)
	}
}
