package providers

import (
	"encoding/json"
	"strings"
	"testing"
)

var hooksSchema = json.RawMessage(`{
	"name":"hooks",
	"strict":true,
	"schema":{
		"type":"object",
		"properties":{
			"hooks":{"type":"array","items":{"type":"string"},"minItems":1},
			"score":{"type":"integer","minimum":1,"maximum":3}
		},
		"required":["hooks"],
		"additionalProperties":false
	}
}`)

func TestSanitizeStructuredSchemaForModel_AnthropicRemovesIntegerBounds(t *testing.T) {
	got, err := sanitizeStructuredSchemaForModel("anthropic/claude-sonnet-4", hooksSchema)
	if err != nil {
		t.Fatalf("sanitizeStructuredSchemaForModel() error = %v", err)
	}
	if strings.Contains(string(got), `"minimum":1`) || strings.Contains(string(got), `"maximum":3`) {
		t.Fatalf("integer minimum/maximum should be removed, got: %s", got)
	}
	if !strings.Contains(string(got), `"minItems":1`) {
		t.Fatalf("array bounds should remain, got: %s", got)
	}
}

func TestSanitizeStructuredSchemaForModel_NonAnthropicUnchanged(t *testing.T) {
	got, err := sanitizeStructuredSchemaForModel("openai/gpt-4.1", hooksSchema)
	if err != nil {
		t.Fatalf("sanitizeStructuredSchemaForModel() error = %v", err)
	}
	if string(got) != string(hooksSchema) {
		t.Fatalf("non-anthropic schema should be unchanged, got: %s", got)
	}
}

func TestAdaptedResponseFormat(t *testing.T) {
	rf := &ResponseFormat{Type: "json_schema", JSONSchema: hooksSchema}

	got, err := adaptedResponseFormat("anthropic/claude-sonnet-4", rf)
	if err != nil || got != nil {
		t.Errorf("anthropic: got %v, %v; want nil, nil", got, err)
	}
	got, err = adaptedResponseFormat("openai/gpt-4o", rf)
	if err != nil || got == nil {
		t.Fatalf("openai: got %v, %v", got, err)
	}
	if got.Type != "json_schema" {
		t.Errorf("Type = %q", got.Type)
	}
}

func TestParseStructuredJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"plain", `{"hooks":["a"]}`, `{"hooks":["a"]}`, false},
		{"code fence", "```json\n{\"ok\":true}\n```", `{"ok":true}`, false},
		{"surrounding text", "Here you go: {\"ok\": true} enjoy", `{"ok":true}`, false},
		{"array", "result: [1, 2]", `[1,2]`, false},
		{"empty", "   ", "", true},
		{"garbage", "no json here", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStructuredJSON(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseStructuredJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("parseStructuredJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateStructuredJSON(t *testing.T) {
	if err := validateStructuredJSON(hooksSchema, json.RawMessage(`{"hooks":["one"],"score":2}`)); err != nil {
		t.Fatalf("validateStructuredJSON(valid) error = %v", err)
	}
	if err := validateStructuredJSON(hooksSchema, json.RawMessage(`{"hooks":["one"],"score":5}`)); err == nil {
		t.Fatal("validateStructuredJSON(out of bounds) expected error")
	}
	if err := validateStructuredJSON(hooksSchema, json.RawMessage(`{"hooks":[]}`)); err == nil {
		t.Fatal("validateStructuredJSON(empty hooks) expected error")
	}
}

func TestDecodeStructured(t *testing.T) {
	rf := &ResponseFormat{Type: "json_schema", JSONSchema: hooksSchema}

	t.Run("from content", func(t *testing.T) {
		var out struct {
			Hooks []string `json:"hooks"`
		}
		err := DecodeStructured(&ChatResult{Content: "```\n{\"hooks\":[\"x\",\"y\"]}\n```"}, rf, &out)
		if err != nil {
			t.Fatalf("DecodeStructured() error = %v", err)
		}
		if len(out.Hooks) != 2 || out.Hooks[1] != "y" {
			t.Errorf("hooks = %v", out.Hooks)
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		var out map[string]any
		err := DecodeStructured(&ChatResult{ParsedJSON: json.RawMessage(`{"rows":[]}`)}, rf, &out)
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestStructuredInstruction(t *testing.T) {
	got := structuredInstruction(hooksSchema)
	if !strings.Contains(got, `"hooks"`) || strings.Contains(got, `"strict"`) {
		t.Errorf("instruction should carry the inner schema only:\n%s", got)
	}
}
