package music

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jackzampolin/hookline/internal/social"
)

// trackIDPaths are the spellings under which a post references its audio.
var trackIDPaths = []string{
	"music_id",
	"musicId",
	"music.id",
	"music_info.id",
	"music.mid",
	"audio_id",
	"sound_id",
	"music",
}

// post is the part of a raw post record the scan uses.
type post struct {
	ID          string
	TrackID     string
	Description string
	Author      string
	URL         string
	CreatedAt   time.Time
}

func parsePost(raw json.RawMessage, handle string) post {
	r := gjson.ParseBytes(raw)
	p := post{
		ID:          social.IDString(first(r, "aweme_id", "video_id", "id")),
		TrackID:     trackID(r),
		Description: first(r, "title", "desc", "description").String(),
		Author:      first(r, "author.unique_id", "author.uniqueId").String(),
		CreatedAt:   unixTime(first(r, "create_time", "createTime")),
	}
	if p.Author == "" {
		p.Author = handle
	}
	p.URL = first(r, "share_url", "shareUrl").String()
	if p.URL == "" && p.ID != "" {
		p.URL = "https://www.tiktok.com/@" + p.Author + "/video/" + p.ID
	}
	return p
}

func trackID(r gjson.Result) string {
	for _, path := range trackIDPaths {
		v := r.Get(path)
		if v.IsObject() || v.IsArray() {
			continue
		}
		if id := social.IDString(v); id != "" {
			return id
		}
	}
	return ""
}

// unixTime reads seconds, or milliseconds for values too large to be seconds.
func unixTime(v gjson.Result) time.Time {
	n := v.Int()
	switch {
	case n <= 0:
		return time.Time{}
	case n > 1e12:
		return time.UnixMilli(n).UTC()
	default:
		return time.Unix(n, 0).UTC()
	}
}

func first(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}
