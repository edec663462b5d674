// Package openapi embeds the OpenAPI YAML document of the stock API.
package openapi

import _ "embed"

// YAML contains the embedded OpenAPI document.
//
//go:embed openapi.yaml
var YAML []byte
