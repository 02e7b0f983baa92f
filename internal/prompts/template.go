package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

// placeholderPattern matches {{name}} with optional whitespace around the name.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.-]*)\s*\}\}`)

// ExtractVariables returns placeholder names in order of first appearance.
func ExtractVariables(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool)
	vars := []string{}
	for _, match := range matches {
		if !seen[match[1]] {
			seen[match[1]] = true
			vars = append(vars, match[1])
		}
	}
	return vars
}

// Render substitutes every {{name}} whose name is in vars with the value's
// string form. Unmatched placeholders, and names whose value is nil, are left
// verbatim. It returns the
// rendered text and the names that stayed unresolved.
func Render(text string, vars map[string]any) (string, []string) {
	seen := make(map[string]bool)
	unresolved := []string{}
	out := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := vars[name]; ok && v != nil {
			return fmt.Sprint(v)
		}
		if !seen[name] {
			seen[name] = true
			unresolved = append(unresolved, name)
		}
		return match
	})
	return out, unresolved
}

// HashText returns a SHA256 hash of the text for change detection.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
