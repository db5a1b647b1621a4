// Package docs provides the embedded API documentation UI for telemd.
//
// This package uses Go's embed directive to include the documentation page
// at compile time, enabling single-binary deployment without external asset
// files. The page is a thin RapiDoc shell that renders the OpenAPI document
// served at /openapi.json.
package docs

import "embed"

// Assets is an embedded filesystem containing the documentation UI.
//
// The filesystem structure is:
//
//	assets/
//	  docs.html    - RapiDoc page rendering /openapi.json
//
//go:embed assets/*
var Assets embed.FS
