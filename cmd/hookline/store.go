package main

import (
	"log/slog"

	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/server"
)

// openStore opens the configured document store for commands that work
// without a running server.
func openStore(logger *slog.Logger) (*prompts.Store, error) {
	h, mgr, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()
	if cfg.Storage.Backend == "memory" {
		logger.Warn("storage.backend is memory; changes are not kept after this command")
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}
	backend, err := server.OpenBackend(cfg.Storage, h)
	if err != nil {
		return nil, err
	}
	return prompts.NewStore(backend, logger), nil
}
