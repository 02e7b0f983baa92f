// Package social is the HTTP client for the social data API: recent posts of
// an account and details of a music track.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/providers"
)

const backendName = "social"

// Config holds social data API settings.
type Config struct {
	BaseURL   string
	APIKey    string
	Host      string  // sent as X-RapidAPI-Host when set
	RateLimit float64 // requests per second
	Timeout   time.Duration
	PageSize  int
}

// Client calls the social data API. It makes one attempt per call.
type Client struct {
	baseURL  string
	apiKey   string
	host     string
	pageSize int
	http     *http.Client
	limiter  *providers.RateLimiter
	logger   *slog.Logger
}

// NewClient creates a social data client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		host:     cfg.Host,
		pageSize: cfg.PageSize,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  providers.NewRateLimiter(cfg.RateLimit),
		logger:   logger,
	}
}

// Track is a music track as reported by the API.
type Track struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Author    string `json:"author" yaml:"author"`
	UserCount int    `json:"user_count" yaml:"user_count"`
	Duration  int    `json:"duration,omitempty" yaml:"duration,omitempty"`
	PlayURL   string `json:"play_url,omitempty" yaml:"play_url,omitempty"`
	ShareURL  string `json:"share_url,omitempty" yaml:"share_url,omitempty"`
	CoverURL  string `json:"cover_url,omitempty" yaml:"cover_url,omitempty"`
}

// SoundURL is the public page of the track.
func (t Track) SoundURL() string {
	if t.ShareURL != "" {
		return t.ShareURL
	}
	return "https://www.tiktok.com/music/-" + t.ID
}

// FetchRecentPosts returns up to depth pages of the account's recent posts.
// Posts are returned raw; their shape varies between API versions.
func (c *Client) FetchRecentPosts(ctx context.Context, handle string, depth int) ([]json.RawMessage, error) {
	var (
		posts  []json.RawMessage
		cursor = "0"
	)
	for page := 0; page < depth; page++ {
		q := url.Values{}
		q.Set("unique_id", handle)
		q.Set("count", strconv.Itoa(c.pageSize))
		q.Set("cursor", cursor)

		body, err := c.get(ctx, "/user/posts", q, "account", handle)
		if err != nil {
			return nil, err
		}
		data, err := payload(body, "account", handle)
		if err != nil {
			return nil, err
		}

		items := firstOf(data, "videos", "posts", "aweme_list", "itemList")
		for _, item := range items.Array() {
			posts = append(posts, json.RawMessage(item.Raw))
		}

		more := firstOf(data, "hasMore", "has_more")
		next := firstOf(data, "cursor", "max_cursor")
		if !more.Bool() || !next.Exists() || next.String() == cursor {
			break
		}
		cursor = next.String()
	}
	c.logger.Debug("fetched posts", "handle", handle, "posts", len(posts))
	return posts, nil
}

// FetchTrackDetails returns the track's metadata. A track the API does not
// know is a NotFoundError.
func (c *Client) FetchTrackDetails(ctx context.Context, id string) (*Track, error) {
	q := url.Values{}
	q.Set("url", id)
	body, err := c.get(ctx, "/music/info", q, "track", id)
	if err != nil {
		return nil, err
	}
	data, err := payload(body, "track", id)
	if err != nil {
		return nil, err
	}
	t := ParseTrack(data)
	if t.ID == "" {
		t.ID = id
	}
	return &t, nil
}

// ParseTrack reads a track record, accepting the field spellings seen
// across API versions.
func ParseTrack(r gjson.Result) Track {
	return Track{
		ID:        IDString(firstOf(r, "id", "music_id", "mid", "id_str")),
		Title:     firstOf(r, "title", "name").String(),
		Author:    firstOf(r, "author", "authorName", "author_name", "owner_nickname").String(),
		UserCount: int(firstOf(r, "user_count", "userCount", "video_count", "videoCount", "stats.videoCount").Int()),
		Duration:  int(firstOf(r, "duration").Int()),
		PlayURL:   firstOf(r, "play", "play_url.uri", "play_url", "playUrl").String(),
		ShareURL:  firstOf(r, "share_url", "shareUrl").String(),
		CoverURL:  firstOf(r, "cover", "cover_large", "coverLarge", "cover_medium").String(),
	}
}

// IDString renders an id as a string. Numbers keep their literal digits so
// 64-bit ids are not rounded through float64.
func IDString(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str)
	case gjson.Number:
		return r.Raw
	}
	return ""
}

// firstOf returns the first path that exists and is not null.
func firstOf(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// payload unwraps {"code":0,"msg":"...","data":{...}} envelopes. A non-zero
// code or an empty data object means the resource does not exist.
func payload(body []byte, resource, id string) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &prompts.BackendError{Backend: backendName, Err: fmt.Errorf("invalid JSON response")}
	}
	root := gjson.ParseBytes(body)
	if code := root.Get("code"); code.Exists() && code.Int() != 0 {
		msg := firstOf(root, "msg", "message").String()
		if strings.Contains(strings.ToLower(msg), "not found") || strings.Contains(strings.ToLower(msg), "not exist") {
			return gjson.Result{}, &prompts.NotFoundError{Resource: resource, ID: id}
		}
		return gjson.Result{}, &prompts.BackendError{Backend: backendName, Err: fmt.Errorf("code %d: %s", code.Int(), msg)}
	}
	data := root.Get("data")
	if !data.Exists() {
		return root, nil
	}
	if data.Type == gjson.Null || (data.IsObject() && len(data.Map()) == 0) {
		return gjson.Result{}, &prompts.NotFoundError{Resource: resource, ID: id}
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, resource, id string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
	}
	if c.host != "" {
		req.Header.Set("X-RapidAPI-Host", c.host)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &prompts.BackendError{Backend: backendName, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &prompts.BackendError{Backend: backendName, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &prompts.NotFoundError{Resource: resource, ID: id}
	case resp.StatusCode == http.StatusTooManyRequests:
		c.limiter.Record429(parseRetryAfter(resp.Header.Get("Retry-After")))
		return nil, &prompts.BackendError{Backend: backendName, Err: fmt.Errorf("rate limited (status 429)")}
	case resp.StatusCode != http.StatusOK:
		return nil, &prompts.BackendError{Backend: backendName, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	return body, nil
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
