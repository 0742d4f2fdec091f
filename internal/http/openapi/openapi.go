// Package openapi embeds the OpenAPI document of the REST surface.
package openapi

import _ "embed"

// ContentType is served with YAML.
const ContentType = "application/yaml"

// YAML contains the embedded OpenAPI document.
//
//go:embed openapi.yaml
var YAML []byte
