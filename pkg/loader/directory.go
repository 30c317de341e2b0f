package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/harun/toolhost/pkg/plugin"
	"github.com/harun/toolhost/pkg/tool"
)

// LaunchFunc starts the tool executable at path.
type LaunchFunc func(ctx context.Context, path string, logger zerolog.Logger) (tool.Tool, error)

// LaunchPlugin is the default LaunchFunc, running path as a go-plugin tool.
func LaunchPlugin(ctx context.Context, path string, logger zerolog.Logger) (tool.Tool, error) {
	return plugin.Launch(ctx, path, logger)
}

// DirectoryDiscovery finds tools laid out as <dir>/<name>/tool.json, one
// directory per tool, named after the tool.
type DirectoryDiscovery struct {
	dir       string
	manifests *plugin.ManifestLoader
	launch    LaunchFunc
	logger    zerolog.Logger
}

// NewDirectoryDiscovery scans dir. A nil launch uses LaunchPlugin.
func NewDirectoryDiscovery(dir string, manifests *plugin.ManifestLoader, launch LaunchFunc, logger zerolog.Logger) *DirectoryDiscovery {
	if launch == nil {
		launch = LaunchPlugin
	}
	return &DirectoryDiscovery{
		dir:       dir,
		manifests: manifests,
		launch:    launch,
		logger:    logger.With().Str("component", "tool-discovery").Logger(),
	}
}

// Dir returns the scanned directory.
func (d *DirectoryDiscovery) Dir() string { return d.dir }

// Discover lists every subdirectory holding a manifest. A missing
// directory yields no candidates; manifests are parsed when a candidate
// is opened, so a broken one fails only its own tool.
func (d *DirectoryDiscovery) Discover(ctx context.Context) ([]Candidate, error) {
	info, err := os.Stat(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			d.logger.Debug().Str("dir", d.dir).Msg("Tools directory does not exist, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat directory %s: %w", d.dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", d.dir)
	}

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", d.dir, err)
	}

	var candidates []Candidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		manifestPath := filepath.Join(d.dir, entry.Name(), plugin.ManifestFile)
		if _, err := os.Stat(manifestPath); err != nil {
			if !os.IsNotExist(err) {
				d.logger.Warn().Err(err).Str("path", manifestPath).Msg("Failed to check for manifest")
			}
			continue
		}

		candidates = append(candidates, d.candidate(entry.Name(), manifestPath))
		d.logger.Debug().Str("tool", entry.Name()).Str("path", manifestPath).Msg("Discovered tool")
	}

	return candidates, nil
}

func (d *DirectoryDiscovery) Find(ctx context.Context, name string) (Candidate, error) {
	manifestPath := filepath.Join(d.dir, name, plugin.ManifestFile)
	if _, err := os.Stat(manifestPath); err != nil {
		if os.IsNotExist(err) {
			return Candidate{}, fmt.Errorf("%w: %s", ErrCandidateNotFound, name)
		}
		return Candidate{}, fmt.Errorf("failed to check manifest for %s: %w", name, err)
	}
	return d.candidate(name, manifestPath), nil
}

func (d *DirectoryDiscovery) candidate(name, manifestPath string) Candidate {
	return Candidate{
		Name:   name,
		Source: SourceDirectory,
		Open: func(ctx context.Context) (tool.Tool, error) {
			manifest, err := d.manifests.LoadManifest(manifestPath)
			if err != nil {
				return nil, err
			}
			if manifest.Name != name {
				return nil, fmt.Errorf("manifest name %q does not match directory %q", manifest.Name, name)
			}

			t, err := d.launch(ctx, manifest.Executable(), d.logger)
			if err != nil {
				return nil, err
			}
			if t.Name() != manifest.Name {
				_ = closeTool(t)
				return nil, fmt.Errorf("executable reports tool %q, manifest declares %q", t.Name(), manifest.Name)
			}
			return t, nil
		},
	}
}

func closeTool(t tool.Tool) error {
	if closer, ok := t.(tool.Closer); ok {
		return closer.Close()
	}
	return nil
}
