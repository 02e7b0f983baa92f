// Package docs provides generated OpenAPI documentation.
//
// Hookline API
//
//	@title			Hookline API
//	@version		1.0
//	@description	Versioned prompt documents, prompt merging, hook generation and music usage scans for short-form video copy.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/hookline
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/hookline/serve.go -o ./swagger --parseDependency --parseInternal
