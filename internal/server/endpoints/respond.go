package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/svcctx"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeServiceError maps a service error to its HTTP status. Errors outside
// the prompts taxonomy are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, verrs.Error())
		return
	}
	status := prompts.StatusCode(err)
	if errors.Is(err, r.Context().Err()) && r.Context().Err() != nil {
		// client went away; nothing useful to write
		return
	}
	if status == http.StatusInternalServerError {
		logger := svcctx.LoggerFrom(r.Context())
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

// decodeBody reads a JSON request body into v and runs its Validate method
// when it has one.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
			return false
		}
	}
	if vv, ok := v.(validation.Validatable); ok {
		if err := vv.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return false
		}
	}
	return true
}

// identityFrom reads the document identity for scope from the query string:
// client and campaign for client/campaign scopes, name for blueprints.
func identityFrom(scope prompts.Scope, q url.Values) prompts.Identity {
	switch scope {
	case prompts.ScopeClient:
		return prompts.ClientID(q.Get("client"))
	case prompts.ScopeCampaign:
		return prompts.CampaignID(q.Get("client"), q.Get("campaign"))
	case prompts.ScopeBlueprint:
		return prompts.BlueprintID(q.Get("name"))
	}
	return prompts.GlobalID()
}

// identityQuery is the inverse of identityFrom.
func identityQuery(id prompts.Identity) url.Values {
	q := url.Values{}
	if id.Client != "" {
		q.Set("client", id.Client)
	}
	if id.Campaign != "" {
		q.Set("campaign", id.Campaign)
	}
	if id.Name != "" {
		q.Set("name", id.Name)
	}
	return q
}

// scopeAndIdentity parses the {scope} path value and the identity query.
func scopeAndIdentity(w http.ResponseWriter, r *http.Request) (prompts.Scope, prompts.Identity, bool) {
	scope, err := prompts.ParseScope(r.PathValue("scope"))
	if err != nil {
		writeServiceError(w, r, err)
		return "", prompts.Identity{}, false
	}
	id := identityFrom(scope, r.URL.Query())
	if err := id.Validate(scope); err != nil {
		writeServiceError(w, r, err)
		return "", prompts.Identity{}, false
	}
	return scope, id, true
}
