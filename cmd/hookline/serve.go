package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/hookline/internal/server"
	"github.com/jackzampolin/hookline/internal/server/endpoints"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Hookline server",
	Long: `Start the Hookline HTTP server.

The document store backend comes from storage.backend in config (fs,
sqlite or memory). Config changes are picked up without a restart; LLM
providers are reloaded when llm_providers changes.

The server provides:
  - /health      - Basic server health check
  - /ready       - Readiness check (includes the document store)
  - /api/...     - Documents, merge, hooks and music routes
  - /swagger     - API docs

Examples:
  hookline serve                    # Start on the configured port (8080)
  hookline serve --port 3000        # Start on custom port
  hookline serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, mgr, err := loadConfig()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		logger := newLogger(mgr.Get().LogLevel)
		mgr.SetLogger(logger)
		mgr.WatchConfig()
		if f := mgr.ConfigFile(); f != "" {
			logger.Info("loaded config", "file", f)
		}

		srv, err := server.New(server.Config{
			Host:            serveHost,
			Port:            servePort,
			ConfigManager:   mgr,
			Home:            h,
			SwaggerSpecPath: endpoints.GetSwaggerSpecPath(),
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port from config)")

	rootCmd.AddCommand(serveCmd)
}
