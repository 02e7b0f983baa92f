package endpoints

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/hookline/internal/api"
	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/svcctx"
)

// MergeEndpoint handles POST /api/merge.
type MergeEndpoint struct{}

func (e *MergeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/merge", e.handler
}

func (e *MergeEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Merge and render a prompt
//	@Description	Layers global, client and campaign documents and substitutes variables
//	@Tags			prompts
//	@Accept			json
//	@Produce		json
//	@Param			request	body		prompts.MergeRequest	true	"Layers, pins and variables"
//	@Success		200		{object}	prompts.MergedPrompt
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/merge [post]
func (e *MergeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req prompts.MergeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	merged, err := svcctx.MergerFrom(r.Context()).Merge(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func (e *MergeEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		req  prompts.MergeRequest
		vars []string
		body bool
	)
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge prompt layers and render variables",
		Example: `  hookline api merge --client acme --campaign launch --var product=Widget
  hookline api merge --client acme --pin-client 2 --body`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseVars(vars)
			if err != nil {
				return err
			}
			req.Variables = v
			var merged prompts.MergedPrompt
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/merge", req, &merged); err != nil {
				return err
			}
			if body {
				return api.OutputRaw([]byte(merged.Body + "\n"))
			}
			return api.Output(merged)
		},
	}
	addMergeFlags(cmd, &req, &vars)
	cmd.Flags().BoolVar(&body, "body", false, "Print only the rendered body")
	return cmd
}

// addMergeFlags registers the layer, pin and variable flags shared by merge
// and the hooks commands.
func addMergeFlags(cmd *cobra.Command, req *prompts.MergeRequest, vars *[]string) {
	cmd.Flags().StringVar(&req.Client, "client", "", "Client layer")
	cmd.Flags().StringVar(&req.Campaign, "campaign", "", "Campaign layer (requires --client)")
	cmd.Flags().IntVar(&req.Pins.Global, "pin-global", 0, "Use this global version instead of the active one")
	cmd.Flags().IntVar(&req.Pins.Client, "pin-client", 0, "Use this client version instead of the active one")
	cmd.Flags().IntVar(&req.Pins.Campaign, "pin-campaign", 0, "Use this campaign version instead of the active one")
	cmd.Flags().StringArrayVar(vars, "var", nil, "Template variable as name=value (repeatable)")
}

// parseVars turns name=value flags into a variables map.
func parseVars(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, want name=value", p)
		}
		vars[name] = value
	}
	return vars, nil
}
