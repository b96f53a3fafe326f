package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages the CUE schemas manifests are validated against.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas loaded.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	_ = sr.RegisterSchema("run", builtinRunSchema)
	_ = sr.RegisterSchema("build", builtinBuildSchema)
	return sr
}

// RegisterSchema compiles and registers a CUE schema under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("compile schema %s: %w", name, err)
	}
	sr.schemas[name] = val
	return nil
}

// Validate unifies data with the named schema and reports violations.
func (sr *SchemaRegistry) Validate(schemaName string, data any) error {
	sr.mu.RLock()
	schema, ok := sr.schemas[schemaName]
	sr.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}
	return nil
}

const builtinRunSchema = `
// Terraform run manifest
{
	// Name identifies the run
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Dir is the Terraform working directory
	dir: string

	// Vars is the variable document, arbitrary structure
	vars: {...}
}
`

const builtinBuildSchema = `
// Packer build manifest
{
	// Name becomes the template registry key
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Version is the build version string
	version: string

	// Dir is the Packer working directory
	dir: string

	// Template is the Packer template file
	template: string

	// Network names the inventory network of the build host
	network: string & =~"^[a-zA-Z0-9_-]+$"

	iso: {
		name:     string
		url:      string
		storage?: string
	}

	build_host?: {
		host?:     string
		user?:     string
		key_path?: string
	}

	// Vars is the variable document, arbitrary structure
	vars: {...}
}
`
