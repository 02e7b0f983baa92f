package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Reserved front matter keys owned by the store. They are taken from the
// Version and never kept as custom fields.
var reservedKeys = []string{"version", "status", "created_at"}

// CTA variants accepted in cta_variant.
const (
	CTASoft   = "soft"
	CTAMedium = "medium"
	CTAHard   = "hard"
)

// FrontMatter is the metadata attached to a version. Recognized keys are
// typed fields; anything else lands in Custom and round-trips unchanged.
type FrontMatter struct {
	// client
	ToneStrength *int           `yaml:"tone_strength,omitempty"`
	CTAVariant   string         `yaml:"cta_variant,omitempty"`
	BannedWords  StringList     `yaml:"banned_words,omitempty"`
	ImageBuckets map[string]any `yaml:"image_buckets,omitempty"`

	// campaign
	Audience          string       `yaml:"audience,omitempty"`
	RageBaitIntensity *int         `yaml:"rage_bait_intensity,omitempty"`
	CampaignNotes     string       `yaml:"campaign_notes,omitempty"`
	TrackedAccounts   StringList   `yaml:"tracked_accounts,omitempty"`
	SavedTracks       []SavedTrack `yaml:"saved_tracks,omitempty"`

	Custom map[string]any `yaml:",inline"`
}

// SavedTrack is a music track promoted into a campaign.
type SavedTrack struct {
	ID           string        `yaml:"id" json:"id"`
	Title        string        `yaml:"title" json:"title"`
	Author       string        `yaml:"author" json:"author"`
	UserCount    int           `yaml:"user_count" json:"user_count"`
	LocalUsage   int           `yaml:"local_usage" json:"local_usage"`
	SoundURL     string        `yaml:"sound_url" json:"sound_url"`
	ShareURL     string        `yaml:"share_url,omitempty" json:"share_url,omitempty"`
	PlayURL      string        `yaml:"play_url,omitempty" json:"play_url,omitempty"`
	SourceVideos []SourceVideo `yaml:"sourceVideos,omitempty" json:"sourceVideos,omitempty"`
	SavedAt      string        `yaml:"saved_at" json:"saved_at"`
}

// SourceVideo references a post that used a track.
type SourceVideo struct {
	PostID       string `yaml:"postId" json:"postId"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
	AuthorHandle string `yaml:"authorHandle" json:"authorHandle"`
	URL          string `yaml:"url,omitempty" json:"url,omitempty"`
}

// Int returns a pointer to v, for the optional integer fields.
func Int(v int) *int { return &v }

// StringList is a list of trimmed strings. When decoded from YAML or JSON
// it also accepts a single comma-separated string.
type StringList []string

// SplitList splits a comma-separated value into trimmed, non-empty items.
func SplitList(s string) StringList {
	var out StringList
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func trimList(items []string) StringList {
	var out StringList
	for _, it := range items {
		if t := strings.TrimSpace(it); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = SplitList(value.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = trimList(items)
		return nil
	}
	return fmt.Errorf("line %d: expected a list or comma-separated string", value.Line)
}

func (l *StringList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = SplitList(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected a list or comma-separated string: %w", err)
	}
	*l = trimList(items)
	return nil
}

// Validate checks value ranges of the recognized keys.
func (fm FrontMatter) Validate() error {
	err := validation.ValidateStruct(&fm,
		validation.Field(&fm.ToneStrength, validation.Min(0), validation.Max(100)),
		validation.Field(&fm.RageBaitIntensity, validation.Min(0), validation.Max(100)),
		validation.Field(&fm.CTAVariant, validation.In(CTASoft, CTAMedium, CTAHard)),
	)
	if err != nil {
		return Invalidf("front matter: %v", err)
	}
	return nil
}

// ToMap flattens the front matter into a single mapping keyed by YAML name.
func (fm FrontMatter) ToMap() (map[string]any, error) {
	data, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("failed to encode front matter: %w", err)
	}
	m := make(map[string]any)
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode front matter: %w", err)
	}
	return m, nil
}

// FromMap builds front matter from a flat mapping. Reserved keys are dropped.
func FromMap(m map[string]any) (FrontMatter, error) {
	var fm FrontMatter
	if len(m) == 0 {
		return fm, nil
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fm, fmt.Errorf("failed to encode front matter: %w", err)
	}
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return fm, Invalidf("front matter: %v", err)
	}
	fm.normalize()
	return fm, nil
}

// Clone returns a deep copy.
func (fm FrontMatter) Clone() (FrontMatter, error) {
	m, err := fm.ToMap()
	if err != nil {
		return FrontMatter{}, err
	}
	return FromMap(m)
}

// normalize removes reserved keys and empty containers.
func (fm *FrontMatter) normalize() {
	for _, k := range reservedKeys {
		delete(fm.Custom, k)
	}
	if len(fm.Custom) == 0 {
		fm.Custom = nil
	}
	if len(fm.ImageBuckets) == 0 {
		fm.ImageBuckets = nil
	}
}

// IsZero reports whether no key is set.
func (fm FrontMatter) IsZero() bool {
	m, err := fm.ToMap()
	return err == nil && len(m) == 0
}

func (fm FrontMatter) MarshalJSON() ([]byte, error) {
	m, err := fm.ToMap()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (fm *FrontMatter) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out, err := FromMap(m)
	if err != nil {
		return err
	}
	*fm = out
	return nil
}

// UpsertTrack replaces the saved track with the same id, or appends it.
func (fm *FrontMatter) UpsertTrack(t SavedTrack) {
	for i := range fm.SavedTracks {
		if fm.SavedTracks[i].ID == t.ID {
			fm.SavedTracks[i] = t
			return
		}
	}
	fm.SavedTracks = append(fm.SavedTracks, t)
}
