// Package assets embeds the default interface description and entity catalogue.
package assets

import _ "embed"

//go:embed openapi.json
var OpenAPI []byte

//go:embed entities.json
var Entities []byte
