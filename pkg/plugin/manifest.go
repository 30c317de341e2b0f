package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// ManifestFile is the file name looked up in each tool directory.
const ManifestFile = "tool.json"

// Manifest describes an out-of-process tool on disk.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Main        string `json:"main"`
	Host        string `json:"host,omitempty"`

	// Dir is the directory holding the manifest; set by the loader.
	Dir string `json:"-"`
}

// Executable returns the absolute path of the manifest's entry point.
func (m *Manifest) Executable() string {
	if filepath.IsAbs(m.Main) {
		return m.Main
	}
	return filepath.Join(m.Dir, m.Main)
}

// ManifestLoader loads and validates tool manifests
type ManifestLoader struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
	hostVersion  *semver.Version
}

// NewManifestLoader creates a manifest loader. hostVersion, when it parses
// as semver, is checked against each manifest's host constraint.
func NewManifestLoader(hostVersion string, logger zerolog.Logger) *ManifestLoader {
	l := &ManifestLoader{
		logger:       logger.With().Str("component", "manifest-loader").Logger(),
		schemaLoader: gojsonschema.NewStringLoader(ManifestSchema),
	}
	if v, err := semver.NewVersion(hostVersion); err == nil {
		l.hostVersion = v
	}
	return l
}

// LoadManifest loads and validates a manifest from a file
func (m *ManifestLoader) LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	manifest, err := m.ParseManifest(data)
	if err != nil {
		return nil, err
	}
	manifest.Dir = filepath.Dir(path)

	m.logger.Debug().
		Str("name", manifest.Name).
		Str("version", manifest.Version).
		Str("path", path).
		Msg("Loaded manifest")

	return manifest, nil
}

// ParseManifest validates data against the schema and the semantic rules.
func (m *ManifestLoader) ParseManifest(data []byte) (*Manifest, error) {
	if err := m.validateSchema(data); err != nil {
		return nil, fmt.Errorf("manifest schema validation failed: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}

	if err := m.validateManifest(&manifest); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	return &manifest, nil
}

func (m *ManifestLoader) validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(m.schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}

	return nil
}

func (m *ManifestLoader) validateManifest(manifest *Manifest) error {
	if _, err := semver.NewVersion(manifest.Version); err != nil {
		return fmt.Errorf("invalid version %q: %w", manifest.Version, err)
	}

	if manifest.Host == "" {
		return nil
	}

	constraint, err := semver.NewConstraint(manifest.Host)
	if err != nil {
		return fmt.Errorf("invalid host constraint %q: %w", manifest.Host, err)
	}
	if m.hostVersion != nil && !constraint.Check(m.hostVersion) {
		return fmt.Errorf("tool %s requires host %s, running %s", manifest.Name, manifest.Host, m.hostVersion)
	}

	return nil
}
