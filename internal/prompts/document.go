package prompts

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fileDelimiter = "---\n"

// frontMatterLine matches `key: value` lines in a document prelude. The colon
// must be followed by whitespace or end the line, so `https://...` stays body.
var frontMatterLine = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*):(?:\s+(.*))?$`)

var (
	listKeys = map[string]bool{"banned_words": true, "tracked_accounts": true}
	intKeys  = map[string]bool{"tone_strength": true, "rage_bait_intensity": true}
)

// Section is one `##` section of a document body.
type Section struct {
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
}

func isSectionHeader(line string) bool {
	return strings.HasPrefix(line, "##") && !strings.HasPrefix(line, "###")
}

// ParseDocument splits plain document text into front matter and body.
//
// Global documents have no front matter; the whole text is the body. For
// other scopes, `key: value` lines before the first `##` header are front
// matter. List keys split comma-separated values, integer keys must parse as
// integers and unknown keys are kept as raw strings. Text that starts with a
// `---` block is read as stored YAML front matter instead.
func ParseDocument(scope Scope, text string) (FrontMatter, string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if scope == ScopeGlobal {
		return FrontMatter{}, text, nil
	}
	if strings.HasPrefix(text, fileDelimiter) {
		snap, err := DecodeFile([]byte(text))
		if err != nil {
			return FrontMatter{}, "", err
		}
		return snap.FrontMatter, snap.Body, nil
	}

	lines := strings.Split(text, "\n")
	raw := make(map[string]any)
	var body []string
	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if isSectionHeader(line) {
			break
		}
		m := frontMatterLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			body = append(body, line)
			continue
		}
		v, err := preludeValue(m[1], strings.TrimSpace(m[2]))
		if err != nil {
			return FrontMatter{}, "", err
		}
		raw[m[1]] = v
	}
	body = append(body, lines[i:]...)

	fm, err := FromMap(raw)
	if err != nil {
		return FrontMatter{}, "", err
	}
	return fm, strings.TrimLeft(strings.Join(body, "\n"), "\n"), nil
}

func preludeValue(key, value string) (any, error) {
	switch {
	case listKeys[key]:
		return []string(SplitList(value)), nil
	case intKeys[key]:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, Invalidf("%s must be an integer, got %q", key, value)
		}
		return n, nil
	}
	return value, nil
}

// ParseSections returns the text before the first `##` header and the
// sections that follow. A section runs to the next `##` header or the end
// of the body.
func ParseSections(body string) (string, []Section) {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	var (
		preamble []string
		sections []Section
		current  *Section
		content  []string
	)
	flush := func() {
		if current != nil {
			current.Content = strings.Trim(strings.Join(content, "\n"), "\n")
			sections = append(sections, *current)
		}
	}
	for _, line := range lines {
		if isSectionHeader(line) {
			flush()
			current = &Section{Title: strings.TrimSpace(strings.TrimLeft(line, "#"))}
			content = nil
			continue
		}
		if current == nil {
			preamble = append(preamble, line)
		} else {
			content = append(content, line)
		}
	}
	flush()
	return strings.Trim(strings.Join(preamble, "\n"), "\n"), sections
}

// EncodeFile renders a snapshot as a text file: a `---` delimited YAML
// header holding the front matter plus version and created_at, then the body
// verbatim.
func EncodeFile(s Snapshot) ([]byte, error) {
	m, err := s.FrontMatter.ToMap()
	if err != nil {
		return nil, err
	}
	m["version"] = s.Number
	m["created_at"] = s.CreatedAt.UTC().Format(time.RFC3339Nano)
	head, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(fileDelimiter)
	buf.Write(head)
	buf.WriteString(fileDelimiter)
	buf.WriteString(s.Body)
	return buf.Bytes(), nil
}

// DecodeFile parses a file written by EncodeFile. Delimiter lines may end
// in CRLF; the body is returned byte for byte.
func DecodeFile(data []byte) (Snapshot, error) {
	rest, ok := cutDelimiter(string(data))
	if !ok {
		return Snapshot{}, Invalidf("missing front matter delimiter")
	}
	var head, body string
	if b, ok := cutDelimiter(rest); ok {
		body = b
	} else {
		found := false
		for pos := 0; !found; {
			nl := strings.IndexByte(rest[pos:], '\n')
			if nl < 0 {
				return Snapshot{}, Invalidf("unterminated front matter")
			}
			end := pos + nl + 1
			if b, ok := cutDelimiter(rest[end:]); ok {
				head, body, found = rest[:end], b, true
			}
			pos = end
		}
	}

	var meta struct {
		Version   int    `yaml:"version"`
		CreatedAt string `yaml:"created_at"`
	}
	if err := yaml.Unmarshal([]byte(head), &meta); err != nil {
		return Snapshot{}, Invalidf("front matter: %v", err)
	}
	var fm FrontMatter
	if err := yaml.Unmarshal([]byte(head), &fm); err != nil {
		return Snapshot{}, Invalidf("front matter: %v", err)
	}
	fm.normalize()

	snap := Snapshot{Number: meta.Version, FrontMatter: fm, Body: body}
	if meta.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, meta.CreatedAt)
		if err != nil {
			return Snapshot{}, Invalidf("created_at: %v", err)
		}
		snap.CreatedAt = t
	}
	return snap, nil
}

// cutDelimiter strips a leading `---` line ending in LF or CRLF.
func cutDelimiter(s string) (string, bool) {
	for _, d := range []string{fileDelimiter, "---\r\n"} {
		if strings.HasPrefix(s, d) {
			return s[len(d):], true
		}
	}
	return s, false
}

// DocumentText renders front matter and body as one text, used for diffs.
func DocumentText(fm FrontMatter, body string) (string, error) {
	m, err := fm.ToMap()
	if err != nil {
		return "", err
	}
	if len(m) == 0 {
		return body, nil
	}
	head, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode front matter: %w", err)
	}
	return fileDelimiter + string(head) + fileDelimiter + body, nil
}
