package endpoints

import (
	"github.com/jackzampolin/hookline/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	eps := []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Document store endpoints
		&ListDocumentsEndpoint{},
		&GetDocumentEndpoint{},
		&DeleteDocumentEndpoint{},
		&ListVersionsEndpoint{},
		&SaveVersionEndpoint{},
		&GetVersionEndpoint{},
		&ActivateVersionEndpoint{},
		&RenameDocumentEndpoint{},
		&DiffVersionsEndpoint{},
		&SectionsEndpoint{},

		// Merge & render
		&MergeEndpoint{},

		// Generation endpoints
		&GenerateHooksEndpoint{},
		&ExpandHooksEndpoint{},

		// Music usage endpoints
		&ScanMusicEndpoint{},
		&SaveTrackEndpoint{},
	}

	swagger := &SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath}
	eps = append(eps, swagger, &SwaggerUIEndpoint{})
	swagger.Endpoints = eps
	return eps
}
