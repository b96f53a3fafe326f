package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Parser loads manifest files and validates them against the schema
// registry before handing them to a workflow.
type Parser struct {
	registry *SchemaRegistry
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewParser creates a parser with the built-in schemas.
func NewParser() *Parser {
	return &Parser{
		registry: NewSchemaRegistry(),
		validate: validator.New(),
		logger:   log.With().Str("component", "config").Logger(),
	}
}

// LoadRunManifest reads, schema-checks and decodes a Terraform run manifest.
// Dir is resolved relative to the manifest file.
func (p *Parser) LoadRunManifest(path string) (*RunManifest, error) {
	var raw any
	if err := p.loadDocument(path, "run", &raw); err != nil {
		return nil, err
	}

	var m RunManifest
	if err := reencode(raw, &m); err != nil {
		return nil, fmt.Errorf("decode run manifest %s: %w", path, err)
	}
	if err := p.validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid run manifest %s: %w", path, err)
	}
	m.Dir = resolveDir(path, m.Dir)

	p.logger.Debug().Str("manifest", path).Str("run", m.Name).Msg("run manifest loaded")
	return &m, nil
}

// LoadBuildManifest reads, schema-checks and decodes a Packer build manifest.
// Dir is resolved relative to the manifest file.
func (p *Parser) LoadBuildManifest(path string) (*BuildManifest, error) {
	var raw any
	if err := p.loadDocument(path, "build", &raw); err != nil {
		return nil, err
	}

	var m BuildManifest
	if err := reencode(raw, &m); err != nil {
		return nil, fmt.Errorf("decode build manifest %s: %w", path, err)
	}
	if err := p.validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid build manifest %s: %w", path, err)
	}
	m.Dir = resolveDir(path, m.Dir)

	p.logger.Debug().
		Str("manifest", path).
		Str("build", m.Name).
		Str("version", m.Version).
		Msg("build manifest loaded")
	return &m, nil
}

func (p *Parser) loadDocument(path, schema string, out *any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := p.registry.Validate(schema, *out); err != nil {
		return fmt.Errorf("manifest %s: %w", path, err)
	}
	return nil
}

func reencode(raw any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func resolveDir(manifestPath, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(filepath.Dir(manifestPath), dir)
}
