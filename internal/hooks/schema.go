package hooks

import (
	"encoding/json"

	"github.com/jackzampolin/hookline/internal/providers"
)

// SlideCount is the number of per-slide columns in an expanded row.
const SlideCount = 5

var hooksSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"hooks": {
			"type": "array",
			"items": {"type": "string", "minLength": 1},
			"minItems": 1
		}
	},
	"required": ["hooks"],
	"additionalProperties": false
}`)

var rowsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"rows": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"hook": {"type": "string"},
					"slide_1": {"type": "string"},
					"slide_2": {"type": "string"},
					"slide_3": {"type": "string"},
					"slide_4": {"type": "string"},
					"slide_5": {"type": "string"}
				},
				"required": ["hook", "slide_1", "slide_2", "slide_3", "slide_4", "slide_5"],
				"additionalProperties": false
			}
		}
	},
	"required": ["rows"],
	"additionalProperties": false
}`)

func hooksFormat() *providers.ResponseFormat {
	return providers.JSONSchemaFormat("hooks", hooksSchema)
}

func rowsFormat() *providers.ResponseFormat {
	return providers.JSONSchemaFormat("rows", rowsSchema)
}
