package hooks

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/providers"
)

type fixture struct {
	store *prompts.Store
	mock  *providers.MockClient
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := prompts.NewStore(prompts.NewMemoryBackend(), nil)
	t.Cleanup(func() { store.Close() })

	mock := providers.NewMockClient()
	registry := providers.NewRegistry()
	registry.RegisterLLM("mock", mock)

	svc := NewService(prompts.NewMerger(store), store, registry, Config{Provider: "mock", HookCount: 3}, nil)
	return &fixture{store: store, mock: mock, svc: svc}
}

func (f *fixture) save(t *testing.T, scope prompts.Scope, id prompts.Identity, fm prompts.FrontMatter, body string) {
	t.Helper()
	if _, err := f.store.Save(context.Background(), scope, id, fm, body); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func TestGenerateHooks(t *testing.T) {
	f := newFixture(t)
	f.save(t, prompts.ScopeGlobal, prompts.GlobalID(), prompts.FrontMatter{}, "## Rules\nlowercase only")
	f.save(t, prompts.ScopeClient, prompts.ClientID("acme"),
		prompts.FrontMatter{BannedWords: prompts.StringList{"cheap"}, CTAVariant: prompts.CTASoft},
		"## Voice\nplayful, talks to {{name}}")
	f.mock.ResponseText = `{"hooks":[" pov: you found it ","POV: you found it","this is cheap","wait for it","last one","overflow"]}`

	res, err := f.svc.GenerateHooks(context.Background(), GenerateRequest{
		MergeRequest: prompts.MergeRequest{Client: "acme", Variables: map[string]any{"name": "Sam"}},
	})
	if err != nil {
		t.Fatalf("GenerateHooks() error = %v", err)
	}

	if diff := cmp.Diff([]string{"pov: you found it", "wait for it", "last one"}, res.Hooks); diff != "" {
		t.Errorf("hooks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"this is cheap"}, res.Rejected); diff != "" {
		t.Errorf("rejected mismatch (-want +got):\n%s", diff)
	}
	if res.RunID == "" || res.PromptHash == "" {
		t.Errorf("missing run id or hash: %+v", res)
	}

	req := f.mock.LastRequest()
	if req.ResponseFormat == nil {
		t.Fatal("expected a structured response format")
	}
	if got := req.Messages[0]; got.Role != providers.RoleSystem || !strings.Contains(got.Content, "talks to Sam") {
		t.Errorf("system message = %+v", got)
	}
	user := req.Messages[len(req.Messages)-1].Content
	for _, want := range []string{"Write 3 distinct hooks", "- banned_words: cheap", "- cta_variant: soft"} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q:\n%s", want, user)
		}
	}
}

func TestGenerateHooks_Errors(t *testing.T) {
	t.Run("backend failure", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ShouldFail = true
		_, err := f.svc.GenerateHooks(context.Background(), GenerateRequest{})
		if !errors.Is(err, prompts.ErrBackend) {
			t.Fatalf("error = %v, want ErrBackend", err)
		}
		if !strings.Contains(err.Error(), "mock client configured to fail") {
			t.Errorf("backend message not kept verbatim: %v", err)
		}
	})

	t.Run("malformed output", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ResponseText = "sorry, I can't do that"
		if _, err := f.svc.GenerateHooks(context.Background(), GenerateRequest{}); !errors.Is(err, prompts.ErrBackend) {
			t.Fatalf("error = %v, want ErrBackend", err)
		}
	})

	t.Run("campaign without client", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.GenerateHooks(context.Background(), GenerateRequest{
			MergeRequest: prompts.MergeRequest{Campaign: "launch"},
		})
		if !errors.Is(err, prompts.ErrInvalidArgument) {
			t.Fatalf("error = %v, want ErrInvalidArgument", err)
		}
		if f.mock.RequestCount() != 0 {
			t.Errorf("backend called %d times", f.mock.RequestCount())
		}
	})

	t.Run("count out of range", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.svc.GenerateHooks(context.Background(), GenerateRequest{Count: 500}); !errors.Is(err, prompts.ErrInvalidArgument) {
			t.Fatalf("error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.GenerateHooks(context.Background(), GenerateRequest{LLM: LLM{Provider: "nope"}})
		if !errors.Is(err, prompts.ErrInvalidArgument) {
			t.Fatalf("error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("abandoned request discards the result", func(t *testing.T) {
		f := newFixture(t)
		f.mock.Latency = 200 * time.Millisecond
		f.mock.ResponseText = `{"hooks":["late"]}`

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		res, err := f.svc.GenerateHooks(ctx, GenerateRequest{})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("error = %v, want context.DeadlineExceeded", err)
		}
		if res != nil {
			t.Errorf("result = %+v, want nil", res)
		}
	})
}

func TestExpandToRows(t *testing.T) {
	f := newFixture(t)
	f.save(t, prompts.ScopeClient, prompts.ClientID("acme"), prompts.FrontMatter{}, "## Voice\nwarm")
	f.save(t, prompts.ScopeBlueprint, prompts.BlueprintID("five-slide"), prompts.FrontMatter{}, "slide 1 sets up, slide 5 pays off")
	f.mock.ResponseText = `{"rows":[
		{"hook":"first?","slide_1":" a ","slide_2":"b","slide_3":"","slide_4":"","slide_5":""},
		{"hook":"second","slide_1":"c","slide_2":"","slide_3":"","slide_4":"","slide_5":"z"}
	]}`

	res, err := f.svc.ExpandToRows(context.Background(), ExpandRequest{
		MergeRequest: prompts.MergeRequest{Client: "acme"},
		Hooks:        []string{"first", " second "},
		Blueprint:    "five-slide",
	})
	if err != nil {
		t.Fatalf("ExpandToRows() error = %v", err)
	}

	want := []Row{
		{Hook: "first", Slide1: "a", Slide2: "b"},
		{Hook: "second", Slide1: "c", Slide5: "z"},
	}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if res.BlueprintVersion != 1 {
		t.Errorf("BlueprintVersion = %d, want 1", res.BlueprintVersion)
	}

	system := f.mock.LastRequest().Messages[0].Content
	if !strings.Contains(system, "## Blueprint: five-slide") || !strings.Contains(system, "slide 5 pays off") {
		t.Errorf("system prompt missing blueprint:\n%s", system)
	}
	user := f.mock.LastRequest().Messages[1].Content
	if !strings.Contains(user, "1. first\n2. second\n") {
		t.Errorf("user prompt missing numbered hooks:\n%s", user)
	}
}

func TestExpandToRows_Errors(t *testing.T) {
	t.Run("no hooks", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.svc.ExpandToRows(context.Background(), ExpandRequest{}); !errors.Is(err, prompts.ErrInvalidArgument) {
			t.Fatalf("error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("blank hook", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.svc.ExpandToRows(context.Background(), ExpandRequest{Hooks: []string{"ok", "  "}}); !errors.Is(err, prompts.ErrInvalidArgument) {
			t.Fatalf("error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("missing blueprint", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ExpandToRows(context.Background(), ExpandRequest{Hooks: []string{"a"}, Blueprint: "ghost"})
		if !errors.Is(err, prompts.ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("too few rows", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ResponseText = `{"rows":[{"hook":"a","slide_1":"x","slide_2":"","slide_3":"","slide_4":"","slide_5":""}]}`
		_, err := f.svc.ExpandToRows(context.Background(), ExpandRequest{Hooks: []string{"a", "b"}})
		if !errors.Is(err, prompts.ErrBackend) {
			t.Fatalf("error = %v, want ErrBackend", err)
		}
	})
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	rows := []Row{
		{Hook: "wait, what?", Slide1: "one, two", Slide2: `say "hi"`},
		{Hook: "plain", Slide5: "end"},
	}
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	want := "hook,slide_1,slide_2,slide_3,slide_4,slide_5\n" +
		"\"wait, what?\",\"one, two\",\"say \"\"hi\"\"\",,,\n" +
		"plain,,,,,end\n"
	if buf.String() != want {
		t.Errorf("WriteCSV() =\n%s\nwant\n%s", buf.String(), want)
	}
}
