package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// adaptedResponseFormat returns the response format to send to the provider.
// Anthropic models routed through OpenRouter get no native response format;
// the schema goes into the prompt instead and is checked locally.
func adaptedResponseFormat(model string, rf *ResponseFormat) (*ResponseFormat, error) {
	if rf == nil || isAnthropicModel(model) {
		return nil, nil
	}
	schema, err := sanitizeStructuredSchemaForModel(model, rf.JSONSchema)
	if err != nil {
		return nil, err
	}
	return &ResponseFormat{Type: rf.Type, JSONSchema: schema}, nil
}

// sanitizeStructuredSchemaForModel strips integer minimum/maximum bounds for
// Anthropic models, which reject them in output schemas.
func sanitizeStructuredSchemaForModel(model string, schemaRaw json.RawMessage) (json.RawMessage, error) {
	if len(schemaRaw) == 0 || !isAnthropicModel(model) {
		return schemaRaw, nil
	}

	var root any
	if err := json.Unmarshal(schemaRaw, &root); err != nil {
		return nil, fmt.Errorf("failed to parse structured schema: %w", err)
	}
	stripIntegerBounds(root)

	sanitized, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize sanitized structured schema: %w", err)
	}
	return sanitized, nil
}

func isAnthropicModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "anthropic/")
}

func stripIntegerBounds(node any) {
	switch n := node.(type) {
	case map[string]any:
		if schemaTypeIncludesInteger(n["type"]) {
			for _, k := range []string{"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum"} {
				delete(n, k)
			}
		}
		for _, v := range n {
			stripIntegerBounds(v)
		}
	case []any:
		for _, v := range n {
			stripIntegerBounds(v)
		}
	}
}

func schemaTypeIncludesInteger(typeVal any) bool {
	switch t := typeVal.(type) {
	case string:
		return t == "integer"
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == "integer" {
				return true
			}
		}
	}
	return false
}

// structuredInstruction is appended to the conversation when the provider
// cannot enforce the schema itself.
func structuredInstruction(schemaRaw json.RawMessage) string {
	schema, err := extractValidationSchema(schemaRaw)
	if err != nil {
		schema = schemaRaw
	}
	return fmt.Sprintf("Return ONLY valid JSON (no markdown, no commentary) that strictly conforms to this schema:\n%s", schema)
}

// parseStructuredJSON parses JSON from model output, recovering from
// markdown code fences and surrounding text.
func parseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	candidates := []string{content, stripCodeFences(content), extractJSONCandidate(content)}
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			return json.Marshal(parsed)
		}
	}
	return nil, fmt.Errorf("failed to parse structured JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	objectStart := strings.Index(trimmed, "{")
	arrayStart := strings.Index(trimmed, "[")

	start, closeChar := objectStart, "}"
	if objectStart < 0 || (arrayStart >= 0 && arrayStart < objectStart) {
		start, closeChar = arrayStart, "]"
	}
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(trimmed, closeChar)
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}

// validateStructuredJSON validates parsed JSON against the canonical schema.
func validateStructuredJSON(schemaRaw, parsed json.RawMessage) error {
	if len(schemaRaw) == 0 || len(parsed) == 0 {
		return nil
	}

	coreSchema, err := extractValidationSchema(schemaRaw)
	if err != nil {
		return err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(coreSchema)); err != nil {
		return fmt.Errorf("failed to load structured schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile structured schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode structured JSON for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("structured output does not match schema: %w", err)
	}
	return nil
}

// extractValidationSchema unwraps {"name","strict","schema":{...}} and
// {"json_schema":{"schema":{...}}} wrappers.
func extractValidationSchema(schemaRaw json.RawMessage) (json.RawMessage, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(schemaRaw, &root); err != nil {
		var anyDoc any
		if err := json.Unmarshal(schemaRaw, &anyDoc); err != nil {
			return nil, fmt.Errorf("invalid structured schema JSON: %w", err)
		}
		return schemaRaw, nil
	}
	if inner, ok := root["schema"]; ok {
		return inner, nil
	}
	if rawInner, ok := root["json_schema"]; ok {
		var innerMap map[string]json.RawMessage
		if err := json.Unmarshal(rawInner, &innerMap); err == nil {
			if s, ok := innerMap["schema"]; ok {
				return s, nil
			}
		}
	}
	return schemaRaw, nil
}

// DecodeStructured takes the structured payload of a result (ParsedJSON if
// the client filled it, the raw content otherwise), validates it against the
// request's schema and unmarshals it into out.
func DecodeStructured(result *ChatResult, format *ResponseFormat, out any) error {
	parsed := result.ParsedJSON
	if len(parsed) == 0 {
		var err error
		if parsed, err = parseStructuredJSON(result.Content); err != nil {
			return err
		}
	}
	if format != nil {
		if err := validateStructuredJSON(format.JSONSchema, parsed); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(parsed, out); err != nil {
		return fmt.Errorf("failed to decode structured output: %w", err)
	}
	return nil
}
