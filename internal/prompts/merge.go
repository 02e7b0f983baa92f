package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Resolver reads documents for merging. *Store implements it.
type Resolver interface {
	Load(ctx context.Context, scope Scope, id Identity) (*Document, error)
	LoadVersion(ctx context.Context, scope Scope, id Identity, number int) (*Version, error)
}

// Pins selects explicit versions. Zero means the active version.
type Pins struct {
	Global   int `json:"global,omitempty" yaml:"global,omitempty"`
	Client   int `json:"client,omitempty" yaml:"client,omitempty"`
	Campaign int `json:"campaign,omitempty" yaml:"campaign,omitempty"`
}

// MergeRequest names the layers to compose and the variables to substitute.
type MergeRequest struct {
	Client    string         `json:"client,omitempty" yaml:"client,omitempty"`
	Campaign  string         `json:"campaign,omitempty" yaml:"campaign,omitempty"`
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
	Pins      Pins           `json:"pins,omitempty" yaml:"pins,omitempty"`
}

// MergeSource records which version of a layer contributed.
type MergeSource struct {
	Scope    Scope    `json:"scope" yaml:"scope"`
	Identity Identity `json:"identity" yaml:"identity"`
	Version  int      `json:"version" yaml:"version"`
}

// MergedPrompt is the composed, rendered prompt. It is never persisted.
type MergedPrompt struct {
	Body         string         `json:"body" yaml:"body"`
	FrontMatter  map[string]any `json:"front_matter" yaml:"front_matter"`
	Hash         string         `json:"hash" yaml:"hash"`
	Placeholders []string       `json:"placeholders" yaml:"placeholders"`
	Unresolved   []string       `json:"unresolved" yaml:"unresolved"`
	Sources      []MergeSource  `json:"sources" yaml:"sources"`
}

// Merger composes global, client and campaign documents.
type Merger struct {
	resolver Resolver
}

// NewMerger creates a merger reading from r.
func NewMerger(r Resolver) *Merger {
	return &Merger{resolver: r}
}

type layer struct {
	scope Scope
	id    Identity
	pin   int
}

// Merge composes the layers in the fixed order global, client, campaign.
// Documents that were never saved contribute nothing. A pinned version that
// does not exist is an error. Given the same stored versions and variables
// the output is byte-identical.
func (m *Merger) Merge(ctx context.Context, req MergeRequest) (*MergedPrompt, error) {
	if req.Campaign != "" && req.Client == "" {
		return nil, Invalidf("campaign %q requires a client", req.Campaign)
	}

	layers := []layer{{scope: ScopeGlobal, id: GlobalID(), pin: req.Pins.Global}}
	if req.Client != "" {
		layers = append(layers, layer{scope: ScopeClient, id: ClientID(req.Client), pin: req.Pins.Client})
	}
	if req.Campaign != "" {
		layers = append(layers, layer{scope: ScopeCampaign, id: CampaignID(req.Client, req.Campaign), pin: req.Pins.Campaign})
	}

	var bodies []string
	fm := make(map[string]any)
	sources := []MergeSource{}
	for _, l := range layers {
		v, err := m.resolve(ctx, l)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		sources = append(sources, MergeSource{Scope: l.scope, Identity: l.id, Version: v.Number})

		if body := strings.Trim(v.Body, "\r\n"); strings.TrimSpace(body) != "" {
			bodies = append(bodies, body)
		}
		layerFM, err := v.FrontMatter.ToMap()
		if err != nil {
			return nil, err
		}
		overlay(fm, layerFM)
	}

	joined := strings.Join(bodies, "\n\n")
	rendered, unresolved := Render(joined, req.Variables)

	hash, err := mergeHash(rendered, fm)
	if err != nil {
		return nil, err
	}
	return &MergedPrompt{
		Body:         rendered,
		FrontMatter:  fm,
		Hash:         hash,
		Placeholders: ExtractVariables(joined),
		Unresolved:   unresolved,
		Sources:      sources,
	}, nil
}

func (m *Merger) resolve(ctx context.Context, l layer) (*Version, error) {
	if l.pin > 0 {
		return m.resolver.LoadVersion(ctx, l.scope, l.id, l.pin)
	}
	doc, err := m.resolver.Load(ctx, l.scope, l.id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc.Active, nil
}

// overlay applies src onto dst, last writer wins. image_buckets is merged
// key by key under the same rule.
func overlay(dst, src map[string]any) {
	for k, v := range src {
		if k == "image_buckets" {
			prev, okPrev := dst[k].(map[string]any)
			next, okNext := v.(map[string]any)
			if okPrev && okNext {
				merged := make(map[string]any, len(prev)+len(next))
				for bk, bv := range prev {
					merged[bk] = bv
				}
				for bk, bv := range next {
					merged[bk] = bv
				}
				dst[k] = merged
				continue
			}
		}
		dst[k] = v
	}
}

func mergeHash(body string, fm map[string]any) (string, error) {
	data, err := json.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("failed to encode merged front matter: %w", err)
	}
	return HashText(body + "\x00" + string(data)), nil
}
