package music

import (
	"context"
	"fmt"
	"time"

	"github.com/jackzampolin/hookline/internal/prompts"
)

// ScanCampaign scans the tracked_accounts of the campaign's active version.
func (s *Scanner) ScanCampaign(ctx context.Context, client, campaign string, depth int) (*Result, error) {
	doc, err := s.campaign(ctx, client, campaign)
	if err != nil {
		return nil, err
	}
	if len(doc.Active.FrontMatter.TrackedAccounts) == 0 {
		return nil, prompts.Invalidf("campaign %s/%s has no tracked_accounts", client, campaign)
	}
	return s.Scan(ctx, doc.Active.FrontMatter.TrackedAccounts, depth)
}

// Promote saves a new campaign version with the entry in saved_tracks,
// replacing any saved track with the same id. The body is carried over.
func (s *Scanner) Promote(ctx context.Context, client, campaign string, e Entry) (*prompts.Version, error) {
	if e.Track.ID == "" {
		return nil, prompts.Invalidf("track id is required")
	}
	doc, err := s.campaign(ctx, client, campaign)
	if err != nil {
		return nil, err
	}
	fm, err := doc.Active.FrontMatter.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to copy front matter: %w", err)
	}
	fm.UpsertTrack(e.SavedTrack(s.now()))

	v, err := s.docs.Save(ctx, prompts.ScopeCampaign, prompts.CampaignID(client, campaign), fm, doc.Active.Body)
	if err != nil {
		return nil, err
	}
	s.logger.Info("saved track to campaign", "client", client, "campaign", campaign, "track_id", e.Track.ID, "version", v.Number)
	return v, nil
}

// SavedTrack converts the entry to its campaign front matter form.
func (e Entry) SavedTrack(at time.Time) prompts.SavedTrack {
	return prompts.SavedTrack{
		ID:           e.Track.ID,
		Title:        e.Track.Title,
		Author:       e.Track.Author,
		UserCount:    e.Track.UserCount,
		LocalUsage:   e.LocalUsageCount,
		SoundURL:     e.Track.SoundURL(),
		ShareURL:     e.Track.ShareURL,
		PlayURL:      e.Track.PlayURL,
		SourceVideos: e.SourceVideos,
		SavedAt:      at.UTC().Format(time.RFC3339),
	}
}

func (s *Scanner) campaign(ctx context.Context, client, campaign string) (*prompts.Document, error) {
	if s.docs == nil {
		return nil, fmt.Errorf("scanner has no document store")
	}
	id := prompts.CampaignID(client, campaign)
	if err := id.Validate(prompts.ScopeCampaign); err != nil {
		return nil, err
	}
	return s.docs.Load(ctx, prompts.ScopeCampaign, id)
}
