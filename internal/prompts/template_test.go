package prompts

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		vars           map[string]any
		want           string
		wantUnresolved []string
	}{
		{
			name:           "substitutes value",
			text:           "hi {{name}}",
			vars:           map[string]any{"name": "Sam"},
			want:           "hi Sam",
			wantUnresolved: []string{},
		},
		{
			name:           "empty variables leave placeholder",
			text:           "hi {{name}}",
			vars:           map[string]any{},
			want:           "hi {{name}}",
			wantUnresolved: []string{"name"},
		},
		{
			name:           "whitespace around name ignored",
			text:           "hi {{  name }} and {{name}}",
			vars:           map[string]any{"name": "Sam"},
			want:           "hi Sam and Sam",
			wantUnresolved: []string{},
		},
		{
			name:           "non-string values use their string form",
			text:           "{{count}} hooks, strength {{ratio}}",
			vars:           map[string]any{"count": 5, "ratio": 0.5},
			want:           "5 hooks, strength 0.5",
			wantUnresolved: []string{},
		},
		{
			name:           "substituted values are not expanded again",
			text:           "{{a}}",
			vars:           map[string]any{"a": "{{b}}", "b": "no"},
			want:           "{{b}}",
			wantUnresolved: []string{},
		},
		{
			name:           "null value stays unresolved",
			text:           "hi {{name}}",
			vars:           map[string]any{"name": nil},
			want:           "hi {{name}}",
			wantUnresolved: []string{"name"},
		},
		{
			name:           "partial resolution",
			text:           "{{product}} for {{audience}} {{product}}",
			vars:           map[string]any{"product": "socks"},
			want:           "socks for {{audience}} socks",
			wantUnresolved: []string{"audience"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unresolved := Render(tt.text, tt.vars)
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
			if diff := cmp.Diff(tt.wantUnresolved, unresolved); diff != "" {
				t.Errorf("unresolved mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractVariables(t *testing.T) {
	got := ExtractVariables("{{ b }} {{a}} {{b}} {{user.name}}")
	if diff := cmp.Diff([]string{"b", "a", "user.name"}, got); diff != "" {
		t.Errorf("ExtractVariables() mismatch (-want +got):\n%s", diff)
	}
}

func TestHashText(t *testing.T) {
	if HashText("a") == HashText("b") {
		t.Error("different text should hash differently")
	}
	if len(HashText("a")) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(HashText("a")))
	}
}
