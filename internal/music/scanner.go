// Package music aggregates music-track usage across the recent posts of
// tracked social accounts, and saves interesting tracks into campaigns.
package music

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/social"
)

// Backend is the social data API. *social.Client implements it.
type Backend interface {
	FetchRecentPosts(ctx context.Context, handle string, depth int) ([]json.RawMessage, error)
	FetchTrackDetails(ctx context.Context, id string) (*social.Track, error)
}

// Documents reads and writes campaign documents. *prompts.Store implements it.
type Documents interface {
	Load(ctx context.Context, scope prompts.Scope, id prompts.Identity) (*prompts.Document, error)
	Save(ctx context.Context, scope prompts.Scope, id prompts.Identity, fm prompts.FrontMatter, body string) (*prompts.Version, error)
}

// Entry is one track in a scan result.
type Entry struct {
	Track           social.Track          `json:"track" yaml:"track"`
	LocalUsageCount int                   `json:"local_usage_count" yaml:"local_usage_count"`
	FirstSeen       time.Time             `json:"first_seen" yaml:"first_seen"`
	LastSeen        time.Time             `json:"last_seen" yaml:"last_seen"`
	SourceVideos    []prompts.SourceVideo `json:"source_videos" yaml:"source_videos"`
}

// Failure kinds.
const (
	FailureHandle = "handle"
	FailureTrack  = "track"
)

// Failure records a handle or track that was left out of a result.
type Failure struct {
	Kind  string `json:"kind" yaml:"kind"`
	Key   string `json:"key" yaml:"key"`
	Error string `json:"error" yaml:"error"`
}

// Result is a ranked scan.
type Result struct {
	Entries       []Entry   `json:"entries" yaml:"entries"`
	Failures      []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Handles       []string  `json:"handles" yaml:"handles"`
	PostsScanned  int       `json:"posts_scanned" yaml:"posts_scanned"`
	EstimatedCost float64   `json:"estimated_cost" yaml:"estimated_cost"`
}

// Scanner runs music usage scans.
type Scanner struct {
	backend Backend
	docs    Documents
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewScanner creates a scanner. docs may be nil when campaigns are not used.
func NewScanner(backend Backend, docs Documents, cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		backend: backend,
		docs:    docs,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// Config returns the effective scan configuration.
func (s *Scanner) Config() Config {
	return s.cfg
}

// NormalizeHandles trims handles, strips a leading @ and drops duplicates.
func NormalizeHandles(handles []string) []string {
	seen := make(map[string]bool, len(handles))
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		key := strings.ToLower(h)
		if h == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

// Scan fetches up to depth pages of posts per handle, groups them by track
// and ranks the tracks by global then local usage. Failing handles and
// tracks are recorded in Failures and left out. If ctx is cancelled the
// scan returns ctx.Err() and no result.
func (s *Scanner) Scan(ctx context.Context, handles []string, depth int) (*Result, error) {
	handles = NormalizeHandles(handles)
	if len(handles) == 0 {
		return nil, prompts.Invalidf("at least one handle is required")
	}
	if depth < 1 {
		return nil, prompts.Invalidf("depth must be at least 1, got %d", depth)
	}
	cost := s.cfg.EstimateCost(len(handles), depth)
	if cost > s.cfg.CostCeiling {
		return nil, prompts.Invalidf("scan of %d handles at depth %d is estimated at %.0f units, above the ceiling of %.0f",
			len(handles), depth, cost, s.cfg.CostCeiling)
	}

	res := &Result{Handles: handles, EstimatedCost: cost}

	perHandle, failures := s.fetchPosts(ctx, handles, depth)
	res.Failures = append(res.Failures, failures...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	aggs, order := s.aggregate(handles, perHandle, res)

	tracks, failures := s.fetchTracks(ctx, order)
	res.Failures = append(res.Failures, failures...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, id := range order {
		if tracks[i] == nil {
			continue
		}
		e := aggs[id]
		e.Track = *tracks[i]
		e.Track.ID = id
		res.Entries = append(res.Entries, *e)
	}
	Rank(res.Entries)

	s.logger.Info("music scan complete",
		"handles", len(handles),
		"posts", res.PostsScanned,
		"tracks", len(res.Entries),
		"failures", len(res.Failures))
	return res, nil
}

// Rank orders entries by backend user count, then local usage, both
// descending. Equal entries keep their order.
func Rank(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Track.UserCount != entries[j].Track.UserCount {
			return entries[i].Track.UserCount > entries[j].Track.UserCount
		}
		return entries[i].LocalUsageCount > entries[j].LocalUsageCount
	})
}

func (s *Scanner) fetchPosts(ctx context.Context, handles []string, depth int) ([][]json.RawMessage, []Failure) {
	posts := make([][]json.RawMessage, len(handles))
	errs := make([]error, len(handles))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, h := range handles {
		g.Go(func() error {
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return nil
			}
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
			posts[i], errs[i] = s.backend.FetchRecentPosts(callCtx, h, depth)
			return nil
		})
	}
	_ = g.Wait()

	var failures []Failure
	for i, err := range errs {
		if err == nil {
			continue
		}
		posts[i] = nil
		s.logger.Warn("skipping handle", "handle", handles[i], "error", err)
		failures = append(failures, Failure{Kind: FailureHandle, Key: handles[i], Error: err.Error()})
	}
	return posts, failures
}

// aggregate groups posts by track id in handle order. order lists track ids
// by first appearance.
func (s *Scanner) aggregate(handles []string, perHandle [][]json.RawMessage, res *Result) (map[string]*Entry, []string) {
	aggs := make(map[string]*Entry)
	var order []string
	for i, raws := range perHandle {
		for _, raw := range raws {
			res.PostsScanned++
			p := parsePost(raw, handles[i])
			if p.TrackID == "" {
				continue
			}
			e, ok := aggs[p.TrackID]
			if !ok {
				e = &Entry{}
				aggs[p.TrackID] = e
				order = append(order, p.TrackID)
			}
			e.LocalUsageCount++
			if !p.CreatedAt.IsZero() {
				if e.FirstSeen.IsZero() || p.CreatedAt.Before(e.FirstSeen) {
					e.FirstSeen = p.CreatedAt
				}
				if p.CreatedAt.After(e.LastSeen) {
					e.LastSeen = p.CreatedAt
				}
			}
			if len(e.SourceVideos) < s.cfg.SourceVideoCap {
				e.SourceVideos = append(e.SourceVideos, prompts.SourceVideo{
					PostID:       p.ID,
					Description:  p.Description,
					AuthorHandle: p.Author,
					URL:          p.URL,
				})
			}
		}
	}
	return aggs, order
}

func (s *Scanner) fetchTracks(ctx context.Context, ids []string) ([]*social.Track, []Failure) {
	tracks := make([]*social.Track, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return nil
			}
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
			tracks[i], errs[i] = s.backend.FetchTrackDetails(callCtx, id)
			return nil
		})
	}
	_ = g.Wait()

	var failures []Failure
	for i, err := range errs {
		if err == nil && tracks[i] == nil {
			err = &prompts.NotFoundError{Resource: "track", ID: ids[i]}
		}
		if err == nil {
			continue
		}
		tracks[i] = nil
		s.logger.Warn("skipping track", "track_id", ids[i], "error", err)
		failures = append(failures, Failure{Kind: FailureTrack, Key: ids[i], Error: err.Error()})
	}
	return tracks, failures
}
