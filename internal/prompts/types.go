// Package prompts stores layered, versioned prompt documents and composes
// them into a single rendered prompt.
//
// Documents live at one of four scopes:
//   - global: one document, no identity
//   - client: keyed by client name
//   - campaign: keyed by (client, campaign)
//   - blueprint: reusable slide templates keyed by name
//
// Every save creates a new immutable Version numbered max+1. Exactly one
// version per identity is active; the active marker is a pointer kept
// outside the snapshot, so activating an older version never rewrites it.
//
// Merge order is always global, then client, then campaign.
package prompts

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

// Scope is the level a document lives at.
type Scope string

const (
	ScopeGlobal    Scope = "global"
	ScopeClient    Scope = "client"
	ScopeCampaign  Scope = "campaign"
	ScopeBlueprint Scope = "blueprint"
)

// Scopes lists all scopes in merge order, blueprint last.
var Scopes = []Scope{ScopeGlobal, ScopeClient, ScopeCampaign, ScopeBlueprint}

// ParseScope converts a string into a Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeGlobal, ScopeClient, ScopeCampaign, ScopeBlueprint:
		return Scope(s), nil
	}
	return "", Invalidf("unknown scope %q", s)
}

// validNamePattern allows letters, digits, space, underscore, dot and hyphen.
// Names cannot start with a dot or a space.
var validNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9 _.-]{0,127}$`)

// ValidateName checks that a client, campaign or blueprint name is usable
// as a storage key.
func ValidateName(kind, name string) error {
	if name == "" {
		return Invalidf("%s name is required", kind)
	}
	if !validNamePattern.MatchString(name) {
		return Invalidf("invalid %s name %q", kind, name)
	}
	return nil
}

// Identity addresses a document within its scope.
// Global uses no fields, client uses Client, campaign uses Client and
// Campaign, blueprint uses Name.
type Identity struct {
	Client   string `json:"client,omitempty" yaml:"client,omitempty"`
	Campaign string `json:"campaign,omitempty" yaml:"campaign,omitempty"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
}

func GlobalID() Identity { return Identity{} }

func ClientID(client string) Identity { return Identity{Client: client} }

func CampaignID(client, campaign string) Identity {
	return Identity{Client: client, Campaign: campaign}
}

func BlueprintID(name string) Identity { return Identity{Name: name} }

// Validate checks that the identity has exactly the fields its scope needs.
func (id Identity) Validate(scope Scope) error {
	switch scope {
	case ScopeGlobal:
		if id != (Identity{}) {
			return Invalidf("global scope takes no identity")
		}
		return nil
	case ScopeClient:
		if id.Campaign != "" || id.Name != "" {
			return Invalidf("client identity takes only a client name")
		}
		return ValidateName("client", id.Client)
	case ScopeCampaign:
		if id.Name != "" {
			return Invalidf("campaign identity takes a client and campaign name")
		}
		if id.Client == "" {
			return Invalidf("campaign %q requires a client", id.Campaign)
		}
		if err := ValidateName("client", id.Client); err != nil {
			return err
		}
		return ValidateName("campaign", id.Campaign)
	case ScopeBlueprint:
		if id.Client != "" || id.Campaign != "" {
			return Invalidf("blueprint identity takes only a name")
		}
		return ValidateName("blueprint", id.Name)
	}
	return Invalidf("unknown scope %q", scope)
}

// Key returns a stable string key such as "campaign/acme/launch".
func (id Identity) Key(scope Scope) string {
	switch scope {
	case ScopeClient:
		return path.Join(string(scope), id.Client)
	case ScopeCampaign:
		return path.Join(string(scope), id.Client, id.Campaign)
	case ScopeBlueprint:
		return path.Join(string(scope), id.Name)
	}
	return string(scope)
}

// Renamed returns the identity with its scope-specific name replaced.
func (id Identity) Renamed(scope Scope, name string) Identity {
	switch scope {
	case ScopeClient:
		id.Client = name
	case ScopeCampaign:
		id.Campaign = name
	case ScopeBlueprint:
		id.Name = name
	}
	return id
}

func (id Identity) String() string {
	switch {
	case id.Campaign != "":
		return fmt.Sprintf("%s/%s", id.Client, id.Campaign)
	case id.Client != "":
		return id.Client
	case id.Name != "":
		return id.Name
	}
	return "global"
}

// Status of a version.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Snapshot is the immutable stored form of a version. Status is not part of
// it; backends keep a separate active pointer.
type Snapshot struct {
	Number      int
	CreatedAt   time.Time
	FrontMatter FrontMatter
	Body        string
}

// Version is a snapshot plus its current status.
type Version struct {
	Number      int         `json:"version" yaml:"version"`
	Status      Status      `json:"status" yaml:"status"`
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at"`
	FrontMatter FrontMatter `json:"front_matter" yaml:"front_matter"`
	Body        string      `json:"body" yaml:"body"`
}

// VersionMeta is a version without its content.
type VersionMeta struct {
	Number    int       `json:"version" yaml:"version"`
	Status    Status    `json:"status" yaml:"status"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Document is a named, versioned prompt unit.
type Document struct {
	Scope    Scope         `json:"scope" yaml:"scope"`
	Identity Identity      `json:"identity" yaml:"identity"`
	Active   Version       `json:"active" yaml:"active"`
	Versions []VersionMeta `json:"versions" yaml:"versions"`
}

func versionOf(s Snapshot, active int) Version {
	status := StatusArchived
	if s.Number == active {
		status = StatusActive
	}
	return Version{
		Number:      s.Number,
		Status:      status,
		CreatedAt:   s.CreatedAt,
		FrontMatter: s.FrontMatter,
		Body:        s.Body,
	}
}

// EventKind identifies a store change.
type EventKind string

const (
	EventSaved          EventKind = "saved"
	EventActivated      EventKind = "activated"
	EventRenamed        EventKind = "renamed"
	EventDeleted        EventKind = "deleted"
	EventExternalChange EventKind = "external_change"
)

// Event is delivered to store subscribers after a change is persisted.
type Event struct {
	Kind     EventKind `json:"kind"`
	Scope    Scope     `json:"scope"`
	Identity Identity  `json:"identity"`
	Version  int       `json:"version,omitempty"`
	// RenamedTo is set for EventRenamed.
	RenamedTo *Identity `json:"renamed_to,omitempty"`
	// Path is set for EventExternalChange.
	Path string `json:"path,omitempty"`
}
