package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/jackzampolin/hookline/internal/config"
	"github.com/jackzampolin/hookline/internal/home"
	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/prompts/fsstore"
	"github.com/jackzampolin/hookline/internal/prompts/sqlstore"
)

// OpenBackend opens the document store backend named by the storage config.
func OpenBackend(cfg config.StorageCfg, h *home.Dir) (prompts.Backend, error) {
	switch cfg.Backend {
	case "", "fs":
		return fsstore.New(h.StorePath("fs", cfg.Path))
	case "sqlite":
		return sqlstore.Open(h.StorePath("sqlite", cfg.Path))
	case "memory":
		return prompts.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want fs, sqlite or memory)", cfg.Backend)
	}
}

// recovery turns a handler panic into a 500 response.
func recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"method", r.Method,
						"stack", string(debug.Stack()),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
