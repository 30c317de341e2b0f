// Package loader turns discovered tool candidates into registry entries.
//
// LoadAll is a best-effort sweep: every candidate is opened and registered
// on its own goroutine, and one candidate's failure (an error, an invalid
// shape, a failed Initialize, or a panic) never affects another. ReloadTool
// is the targeted counterpart and returns its errors to the caller.
package loader

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/harun/toolhost/pkg/tool"
)

// Registry is the part of the tool registry the loader writes to.
type Registry interface {
	Register(ctx context.Context, t tool.Tool) error
	Unregister(name string) bool
	Get(name string) (tool.Tool, bool)
	All() []tool.Tool
}

// Observer receives per-candidate and per-pass load outcomes.
type Observer interface {
	ToolLoaded(source string, err error)
	LoadFinished(loaded, failed int)
}

// Options configures a Loader.
type Options struct {
	// Concurrency bounds simultaneous candidate loads; zero means GOMAXPROCS.
	Concurrency int

	Observer Observer
}

// LoadResult summarises one LoadAll pass. Loaded and Failed hold
// candidate names in sorted order; Errors maps each failed name to its cause.
type LoadResult struct {
	Loaded []string
	Failed []string
	Errors map[string]error
}

// Loader opens candidates from a Discoverer and registers them.
type Loader struct {
	registry   Registry
	discoverer Discoverer
	opts       Options
	logger     zerolog.Logger
}

// New creates a loader.
func New(registry Registry, discoverer Discoverer, opts Options, logger zerolog.Logger) *Loader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Loader{
		registry:   registry,
		discoverer: discoverer,
		opts:       opts,
		logger:     logger.With().Str("component", "tool-loader").Logger(),
	}
}

type loadOutcome struct {
	name string
	err  error
}

// LoadAll discovers and registers every candidate. It never fails: an
// enumeration error with nothing discovered is logged and yields an empty
// result.
func (l *Loader) LoadAll(ctx context.Context) LoadResult {
	result := LoadResult{Errors: make(map[string]error)}

	candidates, err := l.discoverer.Discover(ctx)
	if err != nil {
		if len(candidates) == 0 {
			l.logger.Error().Err(err).Msg("Tool discovery failed, no tools loaded")
			l.finish(result)
			return result
		}
		l.logger.Warn().Err(err).Int("candidates", len(candidates)).Msg("Tool discovery partially failed")
	}

	p := pool.NewWithResults[loadOutcome]().WithMaxGoroutines(l.opts.Concurrency)
	for _, c := range candidates {
		p.Go(func() loadOutcome {
			return loadOutcome{name: c.Name, err: l.loadIsolated(ctx, c)}
		})
	}

	for _, out := range p.Wait() {
		if out.err != nil {
			result.Failed = append(result.Failed, out.name)
			result.Errors[out.name] = out.err
			continue
		}
		result.Loaded = append(result.Loaded, out.name)
	}
	sort.Strings(result.Loaded)
	sort.Strings(result.Failed)

	l.finish(result)
	return result
}

func (l *Loader) finish(result LoadResult) {
	if l.opts.Observer != nil {
		l.opts.Observer.LoadFinished(len(result.Loaded), len(result.Failed))
	}

	event := l.logger.Info()
	if len(result.Failed) > 0 {
		event = l.logger.Warn()
	}
	event.
		Int("loaded", len(result.Loaded)).
		Int("failed", len(result.Failed)).
		Strs("tools", result.Loaded).
		Msg("Tool loading completed")

	for _, name := range result.Failed {
		l.logger.Error().Err(result.Errors[name]).Str("tool", name).Msg("Tool failed to load")
	}
}

// loadIsolated runs load and turns a panic into an error.
func (l *Loader) loadIsolated(ctx context.Context, c Candidate) error {
	var err error
	if recovered := panics.Try(func() { err = l.load(ctx, c) }); recovered != nil {
		err = fmt.Errorf("panic while loading %s: %w", c.Name, recovered.AsError())
	}
	if l.opts.Observer != nil {
		l.opts.Observer.ToolLoaded(c.Source, err)
	}
	return err
}

func (l *Loader) load(ctx context.Context, c Candidate) error {
	if c.Open == nil {
		return fmt.Errorf("candidate %s has no constructor", c.Name)
	}

	t, err := c.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open tool %s: %w", c.Name, err)
	}

	if err := tool.Validate(t); err != nil {
		if t != nil {
			_ = closeTool(t)
		}
		return fmt.Errorf("rejected tool %s: %w", c.Name, err)
	}

	previous, replacing := l.registry.Get(t.Name())
	if err := l.registry.Register(ctx, t); err != nil {
		_ = closeTool(t)
		return err
	}
	if replacing && !sameInstance(previous, t) {
		if err := closeTool(previous); err != nil {
			l.logger.Warn().Err(err).Str("tool", t.Name()).Msg("Failed to close replaced tool")
		}
	}

	l.logger.Debug().Str("tool", t.Name()).Str("source", c.Source).Msg("Tool loaded")
	return nil
}

// sameInstance reports whether a and b are the same pointer. A factory that
// hands out a shared instance must not see it closed on re-registration.
func sameInstance(a, b tool.Tool) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || va.Kind() != reflect.Pointer {
		return false
	}
	return va.Pointer() == vb.Pointer()
}

// ReloadTool unregisters name, closing the old instance, then loads it again
// from its source. Errors are returned, not isolated.
func (l *Loader) ReloadTool(ctx context.Context, name string) error {
	if old, ok := l.registry.Get(name); ok {
		l.registry.Unregister(name)
		if err := closeTool(old); err != nil {
			l.logger.Warn().Err(err).Str("tool", name).Msg("Failed to close replaced tool")
		}
	}

	c, err := l.discoverer.Find(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to reload tool %s: %w", name, err)
	}

	if err := l.load(ctx, c); err != nil {
		if l.opts.Observer != nil {
			l.opts.Observer.ToolLoaded(c.Source, err)
		}
		return fmt.Errorf("failed to reload tool %s: %w", name, err)
	}
	if l.opts.Observer != nil {
		l.opts.Observer.ToolLoaded(c.Source, nil)
	}

	l.logger.Info().Str("tool", name).Msg("Tool reloaded")
	return nil
}

// Shutdown closes every registered tool that holds external resources.
func (l *Loader) Shutdown() error {
	var errs []error
	for _, t := range l.registry.All() {
		if err := closeTool(t); err != nil {
			errs = append(errs, fmt.Errorf("failed to close tool %s: %w", t.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		l.logger.Error().Err(err).Msg("Tool shutdown completed with errors")
		return err
	}
	l.logger.Info().Msg("Tool shutdown completed")
	return nil
}
