package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/hookline/internal/api"
	"github.com/jackzampolin/hookline/internal/music"
	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/svcctx"
)

// ScanRequest asks for a music usage scan, either over explicit handles or
// over a campaign's tracked accounts.
type ScanRequest struct {
	Handles  []string `json:"handles,omitempty"`
	Depth    int      `json:"depth,omitempty"`
	Client   string   `json:"client,omitempty"`
	Campaign string   `json:"campaign,omitempty"`
}

func (r ScanRequest) Validate() error {
	campaignScan := r.Client != "" || r.Campaign != ""
	return validation.ValidateStruct(&r,
		validation.Field(&r.Handles, validation.When(!campaignScan, validation.Required.Error("give handles or a client and campaign"))),
		validation.Field(&r.Handles, validation.When(campaignScan, validation.Empty.Error("give either handles or a campaign, not both"))),
		validation.Field(&r.Client, validation.When(campaignScan, validation.Required)),
		validation.Field(&r.Campaign, validation.When(campaignScan, validation.Required)),
		validation.Field(&r.Depth, validation.Min(0)),
	)
}

// SaveTrackRequest promotes a scanned track into a campaign.
type SaveTrackRequest struct {
	Client   string      `json:"client"`
	Campaign string      `json:"campaign"`
	Entry    music.Entry `json:"entry"`
}

func (r SaveTrackRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Client, validation.Required),
		validation.Field(&r.Campaign, validation.Required),
	)
}

// ScanMusicEndpoint handles POST /api/music/scan.
type ScanMusicEndpoint struct{}

func (e *ScanMusicEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/music/scan", e.handler
}

func (e *ScanMusicEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Scan music usage
//	@Description	Aggregates the tracks used in recent posts of the given handles, or of a campaign's tracked accounts. Depth defaults to 1. Requests over the cost ceiling are rejected before any fetch.
//	@Tags			music
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ScanRequest	true	"Handles or campaign, and page depth"
//	@Success		200		{object}	music.Result
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/music/scan [post]
func (e *ScanMusicEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Depth == 0 {
		req.Depth = 1
	}

	scanner := svcctx.ScannerFrom(r.Context())
	var (
		result *music.Result
		err    error
	)
	if req.Campaign != "" {
		result, err = scanner.ScanCampaign(r.Context(), req.Client, req.Campaign, req.Depth)
	} else {
		result, err = scanner.Scan(r.Context(), req.Handles, req.Depth)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *ScanMusicEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req ScanRequest
	cmd := &cobra.Command{
		Use:   "scan [handle...]",
		Short: "Rank the music used by social accounts",
		Example: `  hookline api music scan @alice @bob --depth 2
  hookline api music scan --client acme --campaign launch
  hookline api music scan --client acme --campaign launch -o json > scan.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Handles = args
			var result music.Result
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/music/scan", req, &result); err != nil {
				return err
			}
			return api.Output(result)
		},
	}
	cmd.Flags().IntVar(&req.Depth, "depth", 1, "Pages of recent posts per handle")
	cmd.Flags().StringVar(&req.Client, "client", "", "Client of the campaign to scan")
	cmd.Flags().StringVar(&req.Campaign, "campaign", "", "Scan this campaign's tracked accounts")
	return cmd
}

// SaveTrackEndpoint handles POST /api/music/save.
type SaveTrackEndpoint struct{}

func (e *SaveTrackEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/music/save", e.handler
}

func (e *SaveTrackEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Save a track to a campaign
//	@Description	Saves a new campaign version with the track added to saved_tracks, replacing an entry with the same id
//	@Tags			music
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SaveTrackRequest	true	"Campaign and scan entry"
//	@Success		201		{object}	prompts.Version
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/music/save [post]
func (e *SaveTrackEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SaveTrackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := svcctx.ScannerFrom(r.Context()).Promote(r.Context(), req.Client, req.Campaign, req.Entry)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (e *SaveTrackEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		req      SaveTrackRequest
		scanFile string
		trackID  string
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a scanned track to a campaign",
		Long: `Save a scanned track to a campaign.

The track is looked up by id in a scan result written with -o json.`,
		Example: `  hookline api music scan --client acme --campaign launch -o json > scan.json
  hookline api music save --client acme --campaign launch --scan-file scan.json --track 7281`,
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := entryFromScan(scanFile, trackID)
			if err != nil {
				return err
			}
			req.Entry = entry
			var v prompts.Version
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/music/save", req, &v); err != nil {
				return err
			}
			fmt.Printf("Saved track %s to %s/%s as version %d\n", trackID, req.Client, req.Campaign, v.Number)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Client, "client", "", "Client name")
	cmd.Flags().StringVar(&req.Campaign, "campaign", "", "Campaign name")
	cmd.Flags().StringVar(&scanFile, "scan-file", "", "Scan result JSON")
	cmd.Flags().StringVar(&trackID, "track", "", "Track id to save")
	for _, f := range []string{"client", "campaign", "scan-file", "track"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}

func entryFromScan(path, trackID string) (music.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return music.Entry{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var result music.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return music.Entry{}, fmt.Errorf("failed to parse scan result %s: %w", path, err)
	}
	for _, e := range result.Entries {
		if e.Track.ID == trackID {
			return e, nil
		}
	}
	return music.Entry{}, fmt.Errorf("track %s not in scan result %s", trackID, path)
}
