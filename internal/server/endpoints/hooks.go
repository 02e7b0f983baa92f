package endpoints

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/hookline/internal/api"
	"github.com/jackzampolin/hookline/internal/hooks"
	"github.com/jackzampolin/hookline/internal/svcctx"
)

const csvContentType = "text/csv"

// GenerateHooksRequest is the body for hook generation.
type GenerateHooksRequest struct {
	hooks.GenerateRequest
}

func (r GenerateHooksRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Campaign, validation.When(r.Campaign != "", validation.By(requiresClient(r.Client)))),
	)
}

// ExpandHooksRequest is the body for expanding approved hooks into rows.
type ExpandHooksRequest struct {
	hooks.ExpandRequest
}

func (r ExpandHooksRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Hooks, validation.Required),
		validation.Field(&r.Campaign, validation.When(r.Campaign != "", validation.By(requiresClient(r.Client)))),
	)
}

// ExpandHooksResponse is the JSON form of an expansion. ExportPath is set
// when the rows were also written to the exports directory.
type ExpandHooksResponse struct {
	hooks.ExpandResult `yaml:",inline"`
	ExportPath         string `json:"export_path,omitempty" yaml:"export_path,omitempty"`
}

func requiresClient(client string) validation.RuleFunc {
	return func(any) error {
		if client == "" {
			return validation.NewError("validation_campaign_client", "campaign requires a client")
		}
		return nil
	}
}

// GenerateHooksEndpoint handles POST /api/hooks/generate.
type GenerateHooksEndpoint struct{}

func (e *GenerateHooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/hooks/generate", e.handler
}

func (e *GenerateHooksEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Generate hooks
//	@Description	Merges the prompt layers and asks the LLM for hooks. Hooks containing a banned word are returned under rejected.
//	@Tags			hooks
//	@Accept			json
//	@Produce		json
//	@Param			request	body		GenerateHooksRequest	true	"Layers, variables and count"
//	@Success		200		{object}	hooks.GenerateResult
//	@Failure		400		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Router			/api/hooks/generate [post]
func (e *GenerateHooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req GenerateHooksRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := svcctx.HooksFrom(r.Context()).GenerateHooks(r.Context(), req.GenerateRequest)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *GenerateHooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		req  GenerateHooksRequest
		vars []string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate hooks from the merged prompt",
		Example: `  hookline api hooks generate --client acme --campaign launch -n 5
  hookline api hooks generate --client acme --provider openai --var product=Widget`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseVars(vars)
			if err != nil {
				return err
			}
			req.Variables = v
			var result hooks.GenerateResult
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/hooks/generate", req, &result); err != nil {
				return err
			}
			return api.Output(result)
		},
	}
	addMergeFlags(cmd, &req.MergeRequest, &vars)
	cmd.Flags().IntVarP(&req.Count, "count", "n", 0, "Number of hooks (default from config)")
	cmd.Flags().StringVar(&req.Instructions, "instructions", "", "Extra instructions appended to the ask")
	cmd.Flags().StringVar(&req.Provider, "provider", "", "LLM provider (default from config)")
	cmd.Flags().StringVar(&req.Model, "model", "", "Model override")
	return cmd
}

// ExpandHooksEndpoint handles POST /api/hooks/expand.
type ExpandHooksEndpoint struct{}

func (e *ExpandHooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/hooks/expand", e.handler
}

func (e *ExpandHooksEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Expand hooks into rows
//	@Description	One row of up to five slides per approved hook, in order. Responds with CSV when Accept is text/csv or format=csv. With export=true the CSV is also written to the exports directory.
//	@Tags			hooks
//	@Accept			json
//	@Produce		json
//	@Produce		text/csv
//	@Param			request	body		ExpandHooksRequest	true	"Approved hooks, layers and blueprint"
//	@Param			format	query		string				false	"csv for a CSV response"
//	@Param			export	query		bool				false	"Also write the CSV to the exports directory"
//	@Success		200		{object}	ExpandHooksResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Router			/api/hooks/expand [post]
func (e *ExpandHooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ExpandHooksRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := svcctx.HooksFrom(r.Context()).ExpandToRows(r.Context(), req.ExpandRequest)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := hooks.WriteCSV(&buf, result.Rows); err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := ExpandHooksResponse{ExpandResult: *result}
	if r.URL.Query().Get("export") == "true" {
		path, err := exportCSV(r, req.ExpandRequest, result.RunID, buf.Bytes())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp.ExportPath = path
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", csvContentType+"; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(req.ExpandRequest, result.RunID)))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func wantsCSV(r *http.Request) bool {
	if r.URL.Query().Get("format") == "csv" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), csvContentType)
}

// exportName is the CSV file name for a run, e.g. acme-launch-<run id>.csv.
func exportName(req hooks.ExpandRequest, runID string) string {
	parts := []string{}
	for _, p := range []string{req.Client, req.Campaign} {
		if p != "" {
			parts = append(parts, strings.ReplaceAll(p, " ", "_"))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "hooks")
	}
	return strings.Join(append(parts, runID), "-") + ".csv"
}

func exportCSV(r *http.Request, req hooks.ExpandRequest, runID string, data []byte) (string, error) {
	h := svcctx.HomeFrom(r.Context())
	if h == nil {
		return "", fmt.Errorf("home directory not available for export")
	}
	if err := h.EnsureExportsDir(); err != nil {
		return "", fmt.Errorf("failed to create exports directory: %w", err)
	}
	path := filepath.Join(h.ExportsDir(), exportName(req, runID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

func (e *ExpandHooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		req       ExpandHooksRequest
		vars      []string
		hooksFile string
		csvOut    string
		export    bool
	)
	cmd := &cobra.Command{
		Use:   "expand [hook...]",
		Short: "Expand approved hooks into slide rows",
		Long: `Expand approved hooks into slide rows.

Hooks come from the arguments, or one per line from --hooks-file.
With --csv the rows are written as CSV to the given file (- for stdout).`,
		Example: `  hookline api hooks expand --client acme --blueprint listicle "Hook one" "Hook two"
  hookline api hooks expand --client acme --hooks-file approved.txt --csv rows.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Hooks = append([]string{}, args...)
			if hooksFile != "" {
				lines, err := readLines(hooksFile)
				if err != nil {
					return err
				}
				req.Hooks = append(req.Hooks, lines...)
			}
			v, err := parseVars(vars)
			if err != nil {
				return err
			}
			req.Variables = v

			path := "/api/hooks/expand"
			if export {
				path += "?export=true"
			}
			client := api.NewClient(getServerURL())

			if csvOut != "" {
				data, err := client.PostRaw(cmd.Context(), path, req, csvContentType)
				if err != nil {
					return err
				}
				if csvOut == "-" {
					return api.OutputRaw(data)
				}
				if err := os.WriteFile(csvOut, data, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", csvOut, err)
				}
				fmt.Printf("Wrote %s\n", csvOut)
				return nil
			}

			var resp ExpandHooksResponse
			if err := client.Post(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	addMergeFlags(cmd, &req.MergeRequest, &vars)
	cmd.Flags().StringVar(&req.Blueprint, "blueprint", "", "Blueprint document to add to the prompt")
	cmd.Flags().StringVar(&hooksFile, "hooks-file", "", "File with one approved hook per line")
	cmd.Flags().StringVar(&csvOut, "csv", "", "Write CSV to this file (- for stdout)")
	cmd.Flags().BoolVar(&export, "export", false, "Also save the CSV in the server's exports directory")
	cmd.Flags().StringVar(&req.Provider, "provider", "", "LLM provider (default from config)")
	cmd.Flags().StringVar(&req.Model, "model", "", "Model override")
	return cmd
}

// readLines returns the non-blank lines of a file.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}
