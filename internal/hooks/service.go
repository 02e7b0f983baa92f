// Package hooks turns merged prompts into hooks and per-slide rows using an
// LLM provider.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/providers"
)

const (
	backendName  = "generation"
	maxHookCount = 50
	maxRowHooks  = 100
)

// Config holds generation defaults.
type Config struct {
	Provider    string // registry name of the default LLM provider
	Model       string // optional model override
	HookCount   int    // hooks per request when the request leaves it zero
	Temperature float64
	Timeout     time.Duration // per LLM call
}

// Service generates hooks and rows.
type Service struct {
	merger   *prompts.Merger
	docs     prompts.Resolver
	registry *providers.Registry
	cfg      Config
	logger   *slog.Logger
}

// NewService creates a generation service. docs is used to read blueprints.
func NewService(merger *prompts.Merger, docs prompts.Resolver, registry *providers.Registry, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HookCount <= 0 {
		cfg.HookCount = 10
	}
	return &Service{
		merger:   merger,
		docs:     docs,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// LLM selects the provider and model for one request. Empty fields fall back
// to the service defaults.
type LLM struct {
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
}

// GenerateRequest asks for hooks from a merged prompt.
type GenerateRequest struct {
	prompts.MergeRequest `yaml:",inline"`
	LLM                  `yaml:",inline"`

	Count int `json:"count,omitempty" yaml:"count,omitempty"`
	// Instructions is appended to the generation ask.
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// Usage reports what one LLM call cost.
type Usage struct {
	Provider     string        `json:"provider" yaml:"provider"`
	Model        string        `json:"model" yaml:"model"`
	PromptTokens int           `json:"prompt_tokens" yaml:"prompt_tokens"`
	OutputTokens int           `json:"output_tokens" yaml:"output_tokens"`
	CostUSD      float64       `json:"cost_usd" yaml:"cost_usd"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}

// GenerateResult holds generated hooks in the order the model returned them.
type GenerateResult struct {
	RunID      string   `json:"run_id" yaml:"run_id"`
	Hooks      []string `json:"hooks" yaml:"hooks"`
	Rejected   []string `json:"rejected,omitempty" yaml:"rejected,omitempty"`
	PromptHash string   `json:"prompt_hash" yaml:"prompt_hash"`
	Usage      Usage    `json:"usage" yaml:"usage"`
}

// ExpandRequest asks for one row per approved hook.
type ExpandRequest struct {
	prompts.MergeRequest `yaml:",inline"`
	LLM                  `yaml:",inline"`

	Hooks     []string `json:"hooks" yaml:"hooks"`
	Blueprint string   `json:"blueprint,omitempty" yaml:"blueprint,omitempty"`
}

// Row is one expanded hook: the hook plus up to five slide texts.
type Row struct {
	Hook   string `json:"hook" yaml:"hook"`
	Slide1 string `json:"slide_1" yaml:"slide_1"`
	Slide2 string `json:"slide_2" yaml:"slide_2"`
	Slide3 string `json:"slide_3" yaml:"slide_3"`
	Slide4 string `json:"slide_4" yaml:"slide_4"`
	Slide5 string `json:"slide_5" yaml:"slide_5"`
}

// ExpandResult holds rows in the order of the approved hooks.
type ExpandResult struct {
	RunID            string `json:"run_id" yaml:"run_id"`
	Rows             []Row  `json:"rows" yaml:"rows"`
	PromptHash       string `json:"prompt_hash" yaml:"prompt_hash"`
	BlueprintVersion int    `json:"blueprint_version,omitempty" yaml:"blueprint_version,omitempty"`
	Usage            Usage  `json:"usage" yaml:"usage"`
}

// GenerateHooks merges the prompt layers and asks the model for hooks.
// Hooks are trimmed and de-duplicated; hooks containing a banned word are
// moved to Rejected.
func (s *Service) GenerateHooks(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Count, validation.Min(0), validation.Max(maxHookCount)),
	); err != nil {
		return nil, prompts.Invalidf("invalid generate request: %v", err)
	}
	count := req.Count
	if count == 0 {
		count = s.cfg.HookCount
	}

	client, model, err := s.client(req.LLM)
	if err != nil {
		return nil, err
	}
	merged, err := s.merger.Merge(ctx, req.MergeRequest)
	if err != nil {
		return nil, err
	}

	var ask strings.Builder
	fmt.Fprintf(&ask, "Write %d distinct hooks for a short-form video post.\n", count)
	ask.WriteString("A hook is the first line a viewer reads: short, specific, no hashtags.\n")
	if brief := briefing(merged.FrontMatter); brief != "" {
		ask.WriteString("\nCampaign settings:\n")
		ask.WriteString(brief)
	}
	if req.Instructions != "" {
		ask.WriteString("\n" + strings.TrimSpace(req.Instructions) + "\n")
	}

	chat := &providers.ChatRequest{
		Messages:       buildMessages(merged.Body, ask.String()),
		Model:          model,
		Temperature:    s.cfg.Temperature,
		Timeout:        s.cfg.Timeout,
		ResponseFormat: hooksFormat(),
		RequestID:      uuid.New().String(),
	}
	result, err := s.chat(ctx, client, chat)
	if err != nil {
		return nil, err
	}

	var out struct {
		Hooks []string `json:"hooks"`
	}
	if err := providers.DecodeStructured(result, chat.ResponseFormat, &out); err != nil {
		return nil, &prompts.BackendError{Backend: backendName, Err: err}
	}

	hooks, rejected := cleanHooks(out.Hooks, stringList(merged.FrontMatter["banned_words"]))
	if len(hooks) > count {
		hooks = hooks[:count]
	}
	s.logger.Info("generated hooks",
		"run_id", chat.RequestID,
		"client", req.Client,
		"campaign", req.Campaign,
		"hooks", len(hooks),
		"rejected", len(rejected),
		"provider", client.Name())

	return &GenerateResult{
		RunID:      chat.RequestID,
		Hooks:      hooks,
		Rejected:   rejected,
		PromptHash: merged.Hash,
		Usage:      usageOf(result),
	}, nil
}

// ExpandToRows expands approved hooks into rows, one per hook and in the
// same order. The blueprint body, if named, is added to the system prompt.
func (s *Service) ExpandToRows(ctx context.Context, req ExpandRequest) (*ExpandResult, error) {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Hooks, validation.Required, validation.Length(1, maxRowHooks)),
	); err != nil {
		return nil, prompts.Invalidf("invalid expand request: %v", err)
	}
	hooks := make([]string, 0, len(req.Hooks))
	for _, h := range req.Hooks {
		if h = strings.TrimSpace(h); h == "" {
			return nil, prompts.Invalidf("approved hooks must not be blank")
		}
		hooks = append(hooks, h)
	}

	client, model, err := s.client(req.LLM)
	if err != nil {
		return nil, err
	}
	merged, err := s.merger.Merge(ctx, req.MergeRequest)
	if err != nil {
		return nil, err
	}

	system := merged.Body
	var blueprintVersion int
	if req.Blueprint != "" {
		doc, err := s.docs.Load(ctx, prompts.ScopeBlueprint, prompts.BlueprintID(req.Blueprint))
		if err != nil {
			return nil, err
		}
		blueprintVersion = doc.Active.Number
		system = strings.TrimSpace(system + "\n\n## Blueprint: " + req.Blueprint + "\n" + strings.TrimSpace(doc.Active.Body))
	}

	var ask strings.Builder
	fmt.Fprintf(&ask, "Expand each approved hook into a post of up to %d slides.\n", SlideCount)
	ask.WriteString("Return exactly one row per hook, in the order given. Leave unused slides empty.\n")
	if brief := briefing(merged.FrontMatter); brief != "" {
		ask.WriteString("\nCampaign settings:\n")
		ask.WriteString(brief)
	}
	ask.WriteString("\nApproved hooks:\n")
	for i, h := range hooks {
		fmt.Fprintf(&ask, "%d. %s\n", i+1, h)
	}

	chat := &providers.ChatRequest{
		Messages:       buildMessages(system, ask.String()),
		Model:          model,
		Temperature:    s.cfg.Temperature,
		Timeout:        s.cfg.Timeout,
		ResponseFormat: rowsFormat(),
		RequestID:      uuid.New().String(),
	}
	result, err := s.chat(ctx, client, chat)
	if err != nil {
		return nil, err
	}

	var out struct {
		Rows []Row `json:"rows"`
	}
	if err := providers.DecodeStructured(result, chat.ResponseFormat, &out); err != nil {
		return nil, &prompts.BackendError{Backend: backendName, Err: err}
	}
	if len(out.Rows) < len(hooks) {
		return nil, &prompts.BackendError{
			Backend: backendName,
			Err:     fmt.Errorf("expected %d rows, got %d", len(hooks), len(out.Rows)),
		}
	}

	rows := make([]Row, len(hooks))
	for i, h := range hooks {
		rows[i] = trimRow(out.Rows[i])
		rows[i].Hook = h
	}
	s.logger.Info("expanded hooks",
		"run_id", chat.RequestID,
		"client", req.Client,
		"campaign", req.Campaign,
		"blueprint", req.Blueprint,
		"rows", len(rows),
		"provider", client.Name())

	return &ExpandResult{
		RunID:            chat.RequestID,
		Rows:             rows,
		PromptHash:       merged.Hash,
		BlueprintVersion: blueprintVersion,
		Usage:            usageOf(result),
	}, nil
}

func (s *Service) client(sel LLM) (providers.LLMClient, string, error) {
	name := sel.Provider
	if name == "" {
		name = s.cfg.Provider
	}
	if name == "" {
		return nil, "", prompts.Invalidf("no LLM provider configured")
	}
	client, err := s.registry.GetLLM(name)
	if err != nil {
		return nil, "", prompts.Invalidf("unknown LLM provider %q", name)
	}
	model := sel.Model
	if model == "" {
		model = s.cfg.Model
	}
	return client, model, nil
}

// chat makes one provider call. If ctx ended while the call was in flight
// its result is discarded and ctx's error returned.
func (s *Service) chat(ctx context.Context, client providers.LLMClient, req *providers.ChatRequest) (*providers.ChatResult, error) {
	result, err := client.Chat(ctx, req)
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.logger.Debug("discarding abandoned generation", "run_id", req.RequestID, "error", ctxErr)
		return nil, ctxErr
	}
	if err != nil {
		s.logger.Warn("generation backend failed", "run_id", req.RequestID, "provider", client.Name(), "error", err)
		return nil, &prompts.BackendError{Backend: backendName, Err: err}
	}
	return result, nil
}

func buildMessages(system, user string) []providers.Message {
	var msgs []providers.Message
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: system})
	}
	return append(msgs, providers.Message{Role: providers.RoleUser, Content: user})
}

// briefingSkip are front matter keys that carry data for other features and
// would only add noise to a generation prompt.
var briefingSkip = map[string]bool{
	"image_buckets":    true,
	"saved_tracks":     true,
	"tracked_accounts": true,
}

// briefing renders merged front matter as sorted "- key: value" lines.
func briefing(fm map[string]any) string {
	keys := make([]string, 0, len(fm))
	for k := range fm {
		if !briefingSkip[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := fm[k]
		if list := stringList(v); list != nil {
			v = strings.Join(list, ", ")
		}
		fmt.Fprintf(&b, "- %s: %v\n", k, v)
	}
	return b.String()
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	return nil
}

// cleanHooks trims and de-duplicates hooks (case-insensitively) and splits
// out hooks that contain a banned word.
func cleanHooks(raw, banned []string) (kept, rejected []string) {
	seen := make(map[string]bool, len(raw))
	kept = []string{}
	for _, h := range raw {
		h = strings.TrimSpace(h)
		key := strings.ToLower(h)
		if h == "" || seen[key] {
			continue
		}
		seen[key] = true
		if containsBanned(key, banned) {
			rejected = append(rejected, h)
			continue
		}
		kept = append(kept, h)
	}
	return kept, rejected
}

func containsBanned(lowerHook string, banned []string) bool {
	for _, w := range banned {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" && strings.Contains(lowerHook, w) {
			return true
		}
	}
	return false
}

func trimRow(r Row) Row {
	return Row{
		Hook:   strings.TrimSpace(r.Hook),
		Slide1: strings.TrimSpace(r.Slide1),
		Slide2: strings.TrimSpace(r.Slide2),
		Slide3: strings.TrimSpace(r.Slide3),
		Slide4: strings.TrimSpace(r.Slide4),
		Slide5: strings.TrimSpace(r.Slide5),
	}
}

func usageOf(r *providers.ChatResult) Usage {
	return Usage{
		Provider:     r.Provider,
		Model:        r.ModelUsed,
		PromptTokens: r.PromptTokens,
		OutputTokens: r.CompletionTokens,
		CostUSD:      r.CostUSD,
		Duration:     r.ExecutionTime,
	}
}
