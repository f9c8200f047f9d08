// Package openapi embeds the OpenAPI specification of the taxamap HTTP API.
package openapi

import (
	_ "embed"
	"sync"

	"github.com/goccy/go-yaml"
)

// SpecYAML is the specification as written.
// Served at: GET /api/v1/openapi.yaml
//
//go:embed openapi.yaml
var SpecYAML []byte

// SpecJSON converts the embedded specification to JSON once.
// Served at: GET /api/v1/openapi.json
var SpecJSON = sync.OnceValues(func() ([]byte, error) {
	return yaml.YAMLToJSON(SpecYAML)
})
