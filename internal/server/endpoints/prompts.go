package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/hookline/internal/api"
	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/svcctx"
)

// ListDocumentsResponse lists the identities stored at a scope.
type ListDocumentsResponse struct {
	Scope     prompts.Scope      `json:"scope" yaml:"scope"`
	Documents []prompts.Identity `json:"documents" yaml:"documents"`
}

// VersionsResponse lists the versions of one document, newest first.
type VersionsResponse struct {
	Scope    prompts.Scope         `json:"scope" yaml:"scope"`
	Identity prompts.Identity      `json:"identity" yaml:"identity"`
	Versions []prompts.VersionMeta `json:"versions" yaml:"versions"`
}

// SaveVersionRequest is the body for saving a new version. Either Text, a
// whole document with front matter, or FrontMatter and Body may be given.
type SaveVersionRequest struct {
	Text        string              `json:"text,omitempty"`
	FrontMatter prompts.FrontMatter `json:"front_matter"`
	Body        string              `json:"body,omitempty"`
}

func (r SaveVersionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Body, validation.When(r.Text != "", validation.Empty.Error("give either text or body"))),
	)
}

// RenameRequest is the body for renaming a document.
type RenameRequest struct {
	NewName string `json:"new_name"`
}

func (r RenameRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewName, validation.Required, validation.Length(1, 128)),
	)
}

// RenameResponse carries the document's new identity.
type RenameResponse struct {
	Scope    prompts.Scope    `json:"scope" yaml:"scope"`
	Identity prompts.Identity `json:"identity" yaml:"identity"`
}

// DiffResponse holds a unified diff between two versions.
type DiffResponse struct {
	From int    `json:"from" yaml:"from"`
	To   int    `json:"to" yaml:"to"`
	Diff string `json:"diff" yaml:"diff"`
}

// SectionsResponse is a version body split at its `##` headers.
type SectionsResponse struct {
	Version  int               `json:"version" yaml:"version"`
	Preamble string            `json:"preamble,omitempty" yaml:"preamble,omitempty"`
	Sections []prompts.Section `json:"sections" yaml:"sections"`
}

// identityFlags are the --client/--campaign/--name flags shared by the
// prompts commands.
type identityFlags struct {
	client, campaign, name string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.client, "client", "", "Client name (client and campaign scopes)")
	cmd.Flags().StringVar(&f.campaign, "campaign", "", "Campaign name (campaign scope)")
	cmd.Flags().StringVar(&f.name, "name", "", "Blueprint name (blueprint scope)")
}

// path builds /api/prompts/{scope}{suffix} with the identity query.
func (f *identityFlags) path(scope, suffix string, extra url.Values) string {
	q := identityQuery(prompts.Identity{Client: f.client, Campaign: f.campaign, Name: f.name})
	for k, vs := range extra {
		q[k] = vs
	}
	p := "/api/prompts/" + url.PathEscape(scope) + suffix
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	return p
}

func versionParam(w http.ResponseWriter, value, name string) (int, bool) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a positive integer, got %q", name, value))
		return 0, false
	}
	return n, true
}

// ListDocumentsEndpoint handles GET /api/prompts/{scope}.
type ListDocumentsEndpoint struct{}

func (e *ListDocumentsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{scope}", e.handler
}

func (e *ListDocumentsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List documents
//	@Description	List the identities stored at a scope. For campaigns, client narrows the result.
//	@Tags			prompts
//	@Produce		json
//	@Param			scope	path		string	true	"global, client, campaign or blueprint"
//	@Param			client	query		string	false	"Client filter for campaigns"
//	@Success		200		{object}	ListDocumentsResponse
//	@Failure		400		{object}	ErrorResponse
//	@Router			/api/prompts/{scope} [get]
func (e *ListDocumentsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.StoreFrom(r.Context())
	scope, err := prompts.ParseScope(r.PathValue("scope"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	ids, err := store.List(r.Context(), scope, r.URL.Query().Get("client"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListDocumentsResponse{Scope: scope, Documents: ids})
}

func (e *ListDocumentsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "list <scope>",
		Short: "List documents at a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/prompts/" + url.PathEscape(args[0])
			if client != "" {
				path += "?" + url.Values{"client": {client}}.Encode()
			}
			var resp ListDocumentsResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Only campaigns of this client")
	return cmd
}

// GetDocumentEndpoint handles GET /api/prompts/{scope}/document.
type GetDocumentEndpoint struct{}

func (e *GetDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{scope}/document", e.handler
}

func (e *GetDocumentEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Load a document
//	@Description	Returns the active version and the version list
//	@Tags			prompts
//	@Produce		json
//	@Param			scope		path		string	true	"Scope"
//	@Param			client		query		string	false	"Client name"
//	@Param			campaign	query		string	false	"Campaign name"
//	@Param			name		query		string	false	"Blueprint name"
//	@Success		200			{object}	prompts.Document
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/prompts/{scope}/document [get]
func (e *GetDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndIdentity(w, r)
	if !ok {
		return
	}
	doc, err := svcctx.StoreFrom(r.Context()).Load(r.Context(), scope, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (e *GetDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var flags identityFlags
	cmd := &cobra.Command{
		Use:   "get <scope>",
		Short: "Show a document's active version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc prompts.Document
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), flags.path(args[0], "/document", nil), &doc); err != nil {
				return err
			}
			return api.Output(doc)
		},
	}
	flags.register(cmd)
	return cmd
}

// DeleteDocumentEndpoint handles DELETE /api/prompts/{scope}/document.
type DeleteDocumentEndpoint struct{}

func (e *DeleteDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/prompts/{scope}/document", e.handler
}

func (e *DeleteDocumentEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Delete a document
//	@Description	Removes every version. Deleting a client removes its campaigns.
//	@Tags			prompts
//	@Param			scope		path	string	true	"Scope"
//	@Param			client		query	string	false	"Client name"
//	@Param			campaign	query	string	false	"Campaign name"
//	@Param			name		query	string	false	"Blueprint name"
//	@Success		204
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/prompts/{scope}/document [delete]
func (e *DeleteDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndIdentity(w, r)
	if !ok {
		return
	}
	if err := svcctx.StoreFrom(r.Context()).Delete(r.Context(), scope, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var flags identityFlags
	cmd := &cobra.Command{
		Use:   "delete <scope>",
		Short: "Delete a document and all its versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := api.NewClient(getServerURL()).Delete(cmd.Context(), flags.path(args[0], "/document", nil)); err != nil {
				return err
			}
			fmt.Println("Deleted")
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// ListVersionsEndpoint handles GET /api/prompts/{scope}/versions.
type ListVersionsEndpoint struct{}

func (e *ListVersionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{scope}/versions", e.handler
}

func (e *ListVersionsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List versions
//	@Description	Versions newest first. A never-saved document has none.
//	@Tags			prompts
//	@Produce		json
//	@Param			scope		path		string	true	"Scope"
//	@Param			client		query		string	false	"Client name"
//	@Param			campaign	query		string	false	"Campaign name"
//	@Param			name		query		string	false	"Blueprint name"
//	@Success		200			{object}	VersionsResponse
//	@Router			/api/prompts/{scope}/versions [get]
func (e *ListVersionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndIdentity(w, r)
	if !ok {
		return
	}
	versions, err := svcctx.StoreFrom(r.Context()).ListVersions(r.Context(), scope, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VersionsResponse{Scope: scope, Identity: id, Versions: versions})
}

func (e *ListVersionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var flags identityFlags
	cmd := &cobra.Command{
		Use:   "versions <scope>",
		Short: "List a document's versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp VersionsResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), flags.path(args[0], "/versions", nil), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	flags.register(cmd)
	return cmd
}

// SaveVersionEndpoint handles POST /api/prompts/{scope}/versions.
type SaveVersionEndpoint struct{}

func (e *SaveVersionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/prompts/{scope}/versions", e.handler
}

func (e *SaveVersionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Save a new version
//	@Description	Creates the next version and makes it active
//	@Tags			prompts
//	@Accept			json
//	@Produce		json
//	@Param			scope		path		string				true	"Scope"
//	@Param			client		query		string				false	"Client name"
//	@Param			campaign	query		string				false	"Campaign name"
//	@Param			name		query		string				false	"Blueprint name"
//	@Param			request		body		SaveVersionRequest	true	"Document content"
//	@Success		201			{object}	prompts.Version
//	@Failure		400			{object}	ErrorResponse
//	@Router			/api/prompts/{scope}/versions [post]
func (e *SaveVersionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndIdentity(w, r)
	if !ok {
		return
	}
	var req SaveVersionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	fm, body := req.FrontMatter, req.Body
	if req.Text != "" {
		var err error
		fm, body, err = prompts.ParseDocument(scope, req.Text)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	v, err := svcctx.StoreFrom(r.Context()).Save(r.Context(), scope, id, fm, body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (e *SaveVersionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		flags identityFlags
		file  string
	)
	cmd := &cobra.Command{
		Use:   "save <scope>",
		Short: "Save a new version from a document file",
		Long: `Save a new version from a document file.

For client, campaign and blueprint scopes, "key: value" lines before the
first "##" header are read as front matter. Use "-" to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if file == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			var v prompts.Version
			req := SaveVersionRequest{Text: string(data)}
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), flags.path(args[0], "/versions", nil), req, &v); err != nil {
				return err
			}
			return api.Output(v)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "Document file (- for stdin)")
	cmd.MarkFlagRequired("file")
	return cmd
}

// GetVersionEndpoint handles GET /api/prompts/{scope}/versions/{version}.
type GetVersionEndpoint struct{}

func (e *GetVersionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{scope}/versions/{version}", e.handler
}

func (e *GetVersionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Load one version
//	@Tags		prompts
//	@Produce	json
//	@Param		scope		path		string	true	"Scope"
//	@Param		version		path		int		true	"Version number"
//	@Param		client		query		string	false	"Client name"
//	@Param		campaign	query		string	false	"Campaign name"
//	@Param		name		query		string	false	"Blueprint name"
//	@Success	200			{object}	prompts.Version
//	@Failure	404			{object}	ErrorResponse
//	@Router		/api/prompts/{scope}/versions/{version} [get]
func (e *GetVersionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndIdentity(w, r)
	if !ok {
		return
	}
	n, ok := versionParam(w, r.PathValue("version"), "version")
	if !ok {
		return
	}
	v, err := svcctx.StoreFrom(r.Context()).LoadVersion(r.Context(), scope, id, n)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (e *GetVersionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var flags identityFlags
	cmd := &cobra.Command{
		Use:   "version <scope> <number>",
		Short: "Show one version of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v prompts.Version
			path := flags.path(args[0], "/versions/"+url.PathEscape(args[1]), nil)
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), path, &v); err != nil {
				return err
			}
			return api.Output(v)
		},
	}
	flags.register(cmd)
	return cmd
}

// ActivateVersionEndpoint handles POST /api/prompts/{scope}/versions/{version}/activate.
type ActivateVersionEndpoint struct{}

func (e *ActivateVersionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/prompts/{scope}/versions/{version}/activate", e.handler
}

func (e *ActivateVersionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Activate a version
//	@Description	Points the document at an existing version without creating a new one
//	@Tags			prompts
//	@Produce		json
//	@Param			scope		path		string	true	"Scope"
//	@Param			version		path		int		true	"Version number"
//	@Param			client		query		string	false	"Client name"
//	@Param			campaign	query		string	false	"Campaign name"
//	@Param			name		query		string	false	"Blueprint name"
//	@Success		200			{object}	prompts.Document
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/prompts/{scope}/versions/{version}/activate [post]
func (e *ActivateVersionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndIdentity(w, r)
	if !ok {
		return
	}
	n, ok := versionParam(w, r.PathValue("version"), "version")
	if !ok {
		return
	}
	store := svcctx.StoreFrom(r.Context())
	if err := store.Activate(r.Context(), scope, id, n); err != nil {
		writeServiceError(w, r, err)
		return
	}
	doc, err := store.Load(r.Context(), scope, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (e *ActivateVersionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var flags identityFlags
	cmd := &cobra.Command{
		Use:   "activate <scope> <number>",
		Short: "Make an existing version active",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc prompts.Document
			path := flags.path(args[0], "/versions/"+url.PathEscape(args[1])+"/activate", nil)
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), path, nil, &doc); err != nil {
				return err
			}
			fmt.Printf("Active version: %d\n", doc.Active.Number)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// RenameDocumentEndpoint handles POST /api/prompts/{scope}/rename.
type RenameDocumentEndpoint struct{}

func (e *RenameDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/prompts/{scope}/rename", e.handler
}

func (e *RenameDocumentEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Rename a document
//	@Description	Renaming a client carries its campaigns. Fails with 409 if the name is taken.
//	@Tags			prompts
//	@Accept			json
//	@Produce		json
//	@Param			scope		path		string			true	"Scope"
//	@Param			client		query		string			false	"Client name"
//	@Param			campaign	query		string			false	"Campaign name"
//	@Param			name		query		string			false	"Blueprint name"
//	@Param			request		body		RenameRequest	true	"New name"
//	@Success		200			{object}	RenameResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Router			/api/prompts/{scope}/rename [post]
func (e *RenameDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndIdentity(w, r)
	if !ok {
		return
	}
	var req RenameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, err := svcctx.StoreFrom(r.Context()).Rename(r.Context(), scope, id, req.NewName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RenameResponse{Scope: scope, Identity: to})
}

func (e *RenameDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var flags identityFlags
	cmd := &cobra.Command{
		Use:   "rename <scope> <new-name>",
		Short: "Rename a client, campaign or blueprint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp RenameResponse
			req := RenameRequest{NewName: args[1]}
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), flags.path(args[0], "/rename", nil), req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	flags.register(cmd)
	return cmd
}

// DiffVersionsEndpoint handles GET /api/prompts/{scope}/diff.
type DiffVersionsEndpoint struct{}

func (e *DiffVersionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{scope}/diff", e.handler
}

func (e *DiffVersionsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Diff two versions
//	@Tags		prompts
//	@Produce	json
//	@Param		scope		path		string	true	"Scope"
//	@Param		from		query		int		true	"Older version"
//	@Param		to			query		int		true	"Newer version"
//	@Param		client		query		string	false	"Client name"
//	@Param		campaign	query		string	false	"Campaign name"
//	@Param		name		query		string	false	"Blueprint name"
//	@Success	200			{object}	DiffResponse
//	@Failure	404			{object}	ErrorResponse
//	@Router		/api/prompts/{scope}/diff [get]
func (e *DiffVersionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndIdentity(w, r)
	if !ok {
		return
	}
	from, ok := versionParam(w, r.URL.Query().Get("from"), "from")
	if !ok {
		return
	}
	to, ok := versionParam(w, r.URL.Query().Get("to"), "to")
	if !ok {
		return
	}
	diff, err := svcctx.StoreFrom(r.Context()).Diff(r.Context(), scope, id, from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DiffResponse{From: from, To: to, Diff: diff})
}

func (e *DiffVersionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		flags    identityFlags
		from, to int
	)
	cmd := &cobra.Command{
		Use:   "diff <scope>",
		Short: "Show a unified diff between two versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := url.Values{
				"from": {strconv.Itoa(from)},
				"to":   {strconv.Itoa(to)},
			}
			var resp DiffResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), flags.path(args[0], "/diff", extra), &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatJSON {
				return api.Output(resp)
			}
			return api.OutputRaw([]byte(resp.Diff))
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&from, "from", 0, "Older version")
	cmd.Flags().IntVar(&to, "to", 0, "Newer version")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

// SectionsEndpoint handles GET /api/prompts/{scope}/sections.
type SectionsEndpoint struct{}

func (e *SectionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{scope}/sections", e.handler
}

func (e *SectionsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Document sections
//	@Description	Splits a version body at its "##" headers. Defaults to the active version.
//	@Tags			prompts
//	@Produce		json
//	@Param			scope		path		string	true	"Scope"
//	@Param			version		query		int		false	"Version number"
//	@Param			client		query		string	false	"Client name"
//	@Param			campaign	query		string	false	"Campaign name"
//	@Param			name		query		string	false	"Blueprint name"
//	@Success		200			{object}	SectionsResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/prompts/{scope}/sections [get]
func (e *SectionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndIdentity(w, r)
	if !ok {
		return
	}
	store := svcctx.StoreFrom(r.Context())

	var v *prompts.Version
	if raw := r.URL.Query().Get("version"); raw != "" {
		n, ok := versionParam(w, raw, "version")
		if !ok {
			return
		}
		var err error
		if v, err = store.LoadVersion(r.Context(), scope, id, n); err != nil {
			writeServiceError(w, r, err)
			return
		}
	} else {
		doc, err := store.Load(r.Context(), scope, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		v = &doc.Active
	}

	preamble, sections := prompts.ParseSections(v.Body)
	if sections == nil {
		sections = []prompts.Section{}
	}
	writeJSON(w, http.StatusOK, SectionsResponse{Version: v.Number, Preamble: preamble, Sections: sections})
}

func (e *SectionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		flags   identityFlags
		version int
	)
	cmd := &cobra.Command{
		Use:   "sections <scope>",
		Short: "List the ## sections of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra url.Values
			if version > 0 {
				extra = url.Values{"version": {strconv.Itoa(version)}}
			}
			var resp SectionsResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), flags.path(args[0], "/sections", extra), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&version, "version", 0, "Version number (default: active)")
	return cmd
}
