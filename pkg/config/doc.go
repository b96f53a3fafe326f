// Package config loads and validates the manifest documents that drive
// ProxForge workflows.
//
// A manifest is a JSON file: a small typed envelope (name, working
// directory, build metadata) around a free-form vars document that may embed
// reference tokens. Manifests are validated twice before a workflow touches
// them: structurally against a CUE schema, then field-by-field with struct
// validation. Token resolution happens later, in pkg/resolve; this package
// only cares that the document has the right shape.
package config
