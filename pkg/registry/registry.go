// Package registry tracks which tools exist and whether they are healthy.
//
// Invariants:
// - A name with an entry always has a health flag; no entry means absent.
// - Initialize and HealthCheck capabilities run outside the lock; each
//   mutation's check-then-write holds it.
// - A failed replacement leaves the previous entry and its health untouched.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/toolhost/pkg/tool"
)

// Observer receives health transitions. It is satisfied by the metrics package.
type Observer interface {
	ToolHealth(name string, healthy bool)
	ToolRemoved(name string)
}

type entry struct {
	tool    tool.Tool
	healthy bool
}

// Registry maps tool names to their descriptor and health flag.
type Registry struct {
	logger   zerolog.Logger
	observer Observer
	entries  map[string]*entry
	mu       sync.RWMutex
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		logger:  logger.With().Str("component", "tool-registry").Logger(),
		entries: make(map[string]*entry),
	}
}

// SetObserver installs an observer for health transitions.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Register installs t under its name after running its Initialize
// capability. A tool already registered under the same name is replaced.
func (r *Registry) Register(ctx context.Context, t tool.Tool) error {
	if err := tool.Validate(t); err != nil {
		return err
	}
	name := t.Name()

	if _, exists := r.Get(name); exists {
		r.logger.Warn().Str("tool", name).Msg("Tool already registered, replacing")
	}

	if init, ok := t.(tool.Initializer); ok {
		if err := init.Initialize(ctx); err != nil {
			r.logger.Error().Err(err).Str("tool", name).Msg("Tool initialization failed")
			return fmt.Errorf("failed to initialize tool %s: %w", name, err)
		}
	}

	r.mu.Lock()
	r.entries[name] = &entry{
		tool:    t,
		healthy: true,
	}
	observer := r.observer
	r.mu.Unlock()

	if observer != nil {
		observer.ToolHealth(name, true)
	}

	r.logger.Info().
		Str("tool", name).
		Str("version", t.Version()).
		Int("methods", len(t.Methods())).
		Msg("Tool registered")

	return nil
}

// Unregister removes the entry for name and reports whether one existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	_, exists := r.entries[name]
	delete(r.entries, name)
	observer := r.observer
	r.mu.Unlock()

	if !exists {
		return false
	}
	if observer != nil {
		observer.ToolRemoved(name)
	}

	r.logger.Info().Str("tool", name).Msg("Tool unregistered")
	return true
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// All returns every registered tool ordered by name.
func (r *Registry) All() []tool.Tool {
	return r.collect(func(*entry) bool { return true })
}

// Healthy returns every tool whose health flag is true, ordered by name.
func (r *Registry) Healthy() []tool.Tool {
	return r.collect(func(e *entry) bool { return e.healthy })
}

// IsHealthy reports whether name is registered and healthy.
func (r *Registry) IsHealthy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	return ok && e.healthy
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Status returns the read-only view of name.
func (r *Registry) Status(name string) (tool.Status, bool) {
	r.mu.RLock()
	e, ok := r.entries[name]
	var healthy bool
	if ok {
		healthy = e.healthy
	}
	r.mu.RUnlock()

	if !ok {
		return tool.Status{}, false
	}
	return statusOf(e.tool, healthy), true
}

// AllStatus returns the status view of every registered tool ordered by name.
func (r *Registry) AllStatus() []tool.Status {
	r.mu.RLock()
	statuses := make([]tool.Status, 0, len(r.entries))
	for _, e := range r.entries {
		statuses = append(statuses, statusOf(e.tool, e.healthy))
	}
	r.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// SetHealth overwrites the health flag of name. It is a no-op when name
// is not registered.
func (r *Registry) SetHealth(name string, healthy bool) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	changed := e.healthy != healthy
	e.healthy = healthy
	observer := r.observer
	r.mu.Unlock()

	r.notifyHealth(observer, name, healthy, changed)
}

func (r *Registry) notifyHealth(observer Observer, name string, healthy, changed bool) {
	if observer != nil {
		observer.ToolHealth(name, healthy)
	}
	if changed {
		r.logger.Info().Str("tool", name).Bool("healthy", healthy).Msg("Tool health changed")
	}
}

// HealthCheck runs the HealthCheck capability of every registered tool
// that has one and records the outcome. Tools without the capability are
// left untouched. It returns the sweep's results by tool name.
func (r *Registry) HealthCheck(ctx context.Context) map[string]bool {
	type target struct {
		name    string
		entry   *entry
		checker tool.HealthChecker
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.entries))
	for name, e := range r.entries {
		if checker, ok := e.tool.(tool.HealthChecker); ok {
			targets = append(targets, target{name: name, entry: e, checker: checker})
		}
	}
	r.mu.RUnlock()

	results := make(map[string]bool, len(targets))
	for _, t := range targets {
		healthy, err := t.checker.HealthCheck(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("tool", t.name).Msg("Health check failed")
			healthy = false
		}
		r.setHealthIfCurrent(t.name, t.entry, healthy)
		results[t.name] = healthy
	}

	r.logger.Debug().Int("checked", len(results)).Msg("Health check sweep completed")
	return results
}

// setHealthIfCurrent records a sweep result only if the checked entry is
// still the one registered under name; a tool replaced mid-sweep keeps the
// health it was registered with.
func (r *Registry) setHealthIfCurrent(name string, checked *entry, healthy bool) {
	r.mu.Lock()
	if r.entries[name] != checked {
		r.mu.Unlock()
		return
	}
	changed := checked.healthy != healthy
	checked.healthy = healthy
	observer := r.observer
	r.mu.Unlock()

	r.notifyHealth(observer, name, healthy, changed)
}

func (r *Registry) collect(keep func(*entry) bool) []tool.Tool {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if keep(e) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	tools := make([]tool.Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, r.entries[name].tool)
	}
	r.mu.RUnlock()

	return tools
}

func statusOf(t tool.Tool, healthy bool) tool.Status {
	return tool.Status{
		Name:        t.Name(),
		Description: t.Description(),
		Version:     t.Version(),
		Healthy:     healthy,
		Methods:     tool.MethodNames(t),
	}
}
