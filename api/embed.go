// Package api holds the OpenAPI description served at /docs/openapi.yaml.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
