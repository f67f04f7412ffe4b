// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so manifest validation works
// regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// SubmitManifestSchema is the embedded submit-manifest JSON schema.
//
//go:embed submit-manifest.schema.json
var SubmitManifestSchema []byte
