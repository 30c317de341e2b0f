package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolhost/pkg/registry"
	"github.com/harun/toolhost/pkg/tool"
)

// closableTool records Close calls.
type closableTool struct {
	*tool.Static
	closed atomic.Int32
}

func (c *closableTool) Close() error {
	c.closed.Add(1)
	return nil
}

func newTool(name, version string) *tool.Static {
	return &tool.Static{
		ToolName:    name,
		ToolVersion: version,
		ToolMethods: []tool.Method{{
			Name: "ping",
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				return "pong", nil
			},
		}},
	}
}

func builtin(name string) Candidate {
	return Builtin(name, func() tool.Tool { return newTool(name, "1.0.0") })
}

func failing(name string, err error) Candidate {
	return Candidate{
		Name:   name,
		Source: SourceBuiltin,
		Open: func(ctx context.Context) (tool.Tool, error) {
			return nil, err
		},
	}
}

type failingDiscoverer struct{}

func (failingDiscoverer) Discover(ctx context.Context) ([]Candidate, error) {
	return nil, errors.New("source unreachable")
}

func (failingDiscoverer) Find(ctx context.Context, name string) (Candidate, error) {
	return Candidate{}, errors.New("source unreachable")
}

type recordingObserver struct {
	mu      sync.Mutex
	sources map[string]int
	errors  int
	loaded  int
	failed  int
}

func (o *recordingObserver) ToolLoaded(source string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sources == nil {
		o.sources = map[string]int{}
	}
	o.sources[source]++
	if err != nil {
		o.errors++
	}
}

func (o *recordingObserver) LoadFinished(loaded, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loaded, o.failed = loaded, failed
}

func healthyNames(r *registry.Registry) []string {
	var names []string
	for _, t := range r.Healthy() {
		names = append(names, t.Name())
	}
	return names
}

func TestLoader_LoadAll(t *testing.T) {
	ctx := context.Background()

	t.Run("one failure among N", func(t *testing.T) {
		reg := registry.New(zerolog.Nop())
		obs := &recordingObserver{}
		discovery := NewStaticDiscovery(
			builtin("calculator"),
			builtin("echo"),
			failing("weather", errors.New("missing API key")),
			builtin("timezone"),
		)
		l := New(reg, discovery, Options{Concurrency: 2, Observer: obs}, zerolog.Nop())

		result := l.LoadAll(ctx)

		assert.Equal(t, []string{"calculator", "echo", "timezone"}, result.Loaded)
		assert.Equal(t, []string{"weather"}, result.Failed)
		require.Contains(t, result.Errors, "weather")
		assert.ErrorContains(t, result.Errors["weather"], "missing API key")
		assert.Equal(t, []string{"calculator", "echo", "timezone"}, reg.Names())
		assert.Equal(t, 3, obs.loaded)
		assert.Equal(t, 1, obs.failed)
		assert.Equal(t, 4, obs.sources[SourceBuiltin])
		assert.Equal(t, 1, obs.errors)
	})

	t.Run("failed initialize is isolated", func(t *testing.T) {
		reg := registry.New(zerolog.Nop())
		discovery := NewStaticDiscovery(
			builtin("echo"),
			Builtin("db", func() tool.Tool {
				bad := newTool("db", "1.0.0")
				bad.InitFunc = func(ctx context.Context) error { return errors.New("connection refused") }
				return bad
			}),
		)
		l := New(reg, discovery, Options{}, zerolog.Nop())

		result := l.LoadAll(ctx)
		assert.Equal(t, []string{"echo"}, result.Loaded)
		assert.Equal(t, []string{"db"}, result.Failed)
		assert.Equal(t, []string{"echo"}, healthyNames(reg))
	})

	t.Run("invalid shape never reaches the registry", func(t *testing.T) {
		reg := registry.New(zerolog.Nop())
		closable := &closableTool{Static: &tool.Static{ToolName: "", ToolMethods: []tool.Method{}}}
		nameless := Candidate{
			Name:   "nameless",
			Source: SourceBuiltin,
			Open:   func(ctx context.Context) (tool.Tool, error) { return closable, nil },
		}
		noMethods := Builtin("silent", func() tool.Tool { return &tool.Static{ToolName: "silent"} })
		nilTool := Candidate{
			Name:   "nil",
			Source: SourceBuiltin,
			Open:   func(ctx context.Context) (tool.Tool, error) { return nil, nil },
		}
		noOpen := Candidate{Name: "broken", Source: SourceBuiltin}

		l := New(reg, NewStaticDiscovery(nameless, noMethods, nilTool, noOpen, builtin("echo")), Options{}, zerolog.Nop())
		result := l.LoadAll(ctx)

		assert.Equal(t, []string{"echo"}, result.Loaded)
		assert.Equal(t, []string{"broken", "nameless", "nil", "silent"}, result.Failed)
		assert.ErrorIs(t, result.Errors["nameless"], tool.ErrInvalidTool)
		assert.ErrorIs(t, result.Errors["silent"], tool.ErrInvalidTool)
		assert.ErrorIs(t, result.Errors["nil"], tool.ErrInvalidTool)
		assert.Equal(t, int32(1), closable.closed.Load(), "rejected tools are closed")
		assert.Equal(t, 1, reg.Len())
	})

	t.Run("panic is isolated", func(t *testing.T) {
		reg := registry.New(zerolog.Nop())
		boom := Candidate{
			Name:   "boom",
			Source: SourceBuiltin,
			Open:   func(ctx context.Context) (tool.Tool, error) { panic("plugin init exploded") },
		}
		l := New(reg, NewStaticDiscovery(boom, builtin("echo")), Options{}, zerolog.Nop())

		result := l.LoadAll(ctx)
		assert.Equal(t, []string{"echo"}, result.Loaded)
		assert.Equal(t, []string{"boom"}, result.Failed)
		assert.ErrorContains(t, result.Errors["boom"], "plugin init exploded")
	})

	t.Run("enumeration failure yields zero tools", func(t *testing.T) {
		reg := registry.New(zerolog.Nop())
		obs := &recordingObserver{}
		l := New(reg, failingDiscoverer{}, Options{Observer: obs}, zerolog.Nop())

		result := l.LoadAll(ctx)
		assert.Empty(t, result.Loaded)
		assert.Empty(t, result.Failed)
		assert.Equal(t, 0, reg.Len())
		assert.Equal(t, 0, obs.loaded)
	})

	t.Run("partial enumeration failure loads what was found", func(t *testing.T) {
		reg := registry.New(zerolog.Nop())
		discovery := MultiDiscovery{failingDiscoverer{}, NewStaticDiscovery(builtin("echo"))}
		l := New(reg, discovery, Options{}, zerolog.Nop())

		result := l.LoadAll(ctx)
		assert.Equal(t, []string{"echo"}, result.Loaded)
	})

	t.Run("many candidates", func(t *testing.T) {
		reg := registry.New(zerolog.Nop())
		var candidates []Candidate
		for i := 0; i < 40; i++ {
			name := fmt.Sprintf("tool-%02d", i)
			if i%10 == 0 {
				candidates = append(candidates, failing(name, errors.New("bad module")))
				continue
			}
			candidates = append(candidates, builtin(name))
		}
		l := New(reg, NewStaticDiscovery(candidates...), Options{Concurrency: 4}, zerolog.Nop())

		result := l.LoadAll(ctx)
		assert.Len(t, result.Loaded, 36)
		assert.Len(t, result.Failed, 4)
		assert.Equal(t, 36, reg.Len())
	})
}

func TestLoader_ReloadTool(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces and closes the old instance", func(t *testing.T) {
		reg := registry.New(zerolog.Nop())
		var instances []*closableTool
		version := 0
		candidate := Builtin("echo", func() tool.Tool {
			version++
			c := &closableTool{Static: newTool("echo", fmt.Sprintf("1.0.%d", version))}
			instances = append(instances, c)
			return c
		})
		l := New(reg, NewStaticDiscovery(candidate), Options{}, zerolog.Nop())

		l.LoadAll(ctx)
		require.NoError(t, l.ReloadTool(ctx, "echo"))

		status, ok := reg.Status("echo")
		require.True(t, ok)
		assert.Equal(t, "1.0.2", status.Version)
		require.Len(t, instances, 2)
		assert.Equal(t, int32(1), instances[0].closed.Load())
		assert.Equal(t, int32(0), instances[1].closed.Load())
	})

	t.Run("unknown tool propagates", func(t *testing.T) {
		reg := registry.New(zerolog.Nop())
		l := New(reg, NewStaticDiscovery(), Options{}, zerolog.Nop())

		err := l.ReloadTool(ctx, "ghost")
		assert.ErrorIs(t, err, ErrCandidateNotFound)
	})

	t.Run("open failure propagates and leaves the tool absent", func(t *testing.T) {
		reg := registry.New(zerolog.Nop())
		require.NoError(t, reg.Register(ctx, newTool("weather", "1.0.0")))

		l := New(reg, NewStaticDiscovery(failing("weather", errors.New("bad module"))), Options{}, zerolog.Nop())
		err := l.ReloadTool(ctx, "weather")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad module")

		_, ok := reg.Get("weather")
		assert.False(t, ok)
	})
}

func TestLoader_LoadAllClosesReplacedInstances(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(zerolog.Nop())

	var instances []*closableTool
	candidate := Builtin("plugin", func() tool.Tool {
		c := &closableTool{Static: newTool("plugin", "1.0.0")}
		instances = append(instances, c)
		return c
	})
	l := New(reg, NewStaticDiscovery(candidate), Options{}, zerolog.Nop())

	l.LoadAll(ctx)
	l.LoadAll(ctx)

	require.Len(t, instances, 2)
	assert.Equal(t, int32(1), instances[0].closed.Load(), "the replaced instance is closed")
	assert.Equal(t, int32(0), instances[1].closed.Load())

	current, ok := reg.Get("plugin")
	require.True(t, ok)
	assert.Same(t, instances[1], current)
}

func TestLoader_SharedInstanceIsNotClosed(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(zerolog.Nop())

	shared := &closableTool{Static: newTool("shared", "1.0.0")}
	candidate := Builtin("shared", func() tool.Tool { return shared })
	l := New(reg, NewStaticDiscovery(candidate), Options{}, zerolog.Nop())

	l.LoadAll(ctx)
	l.LoadAll(ctx)
	assert.Equal(t, int32(0), shared.closed.Load())
}

func TestLoader_Shutdown(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(zerolog.Nop())

	closable := &closableTool{Static: newTool("plugin", "1.0.0")}
	require.NoError(t, reg.Register(ctx, closable))
	require.NoError(t, reg.Register(ctx, newTool("plain", "1.0.0")))

	l := New(reg, NewStaticDiscovery(), Options{}, zerolog.Nop())
	require.NoError(t, l.Shutdown())
	assert.Equal(t, int32(1), closable.closed.Load())
}

func TestMultiDiscovery(t *testing.T) {
	ctx := context.Background()
	first := NewStaticDiscovery(Builtin("echo", func() tool.Tool { return newTool("echo", "1.0.0") }))
	second := NewStaticDiscovery(
		Builtin("echo", func() tool.Tool { return newTool("echo", "2.0.0") }),
		builtin("calculator"),
	)
	multi := MultiDiscovery{first, second}

	candidates, err := multi.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	c, err := multi.Find(ctx, "echo")
	require.NoError(t, err)
	opened, err := c.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", opened.Version(), "earlier adapters shadow later ones")

	_, err = multi.Find(ctx, "calculator")
	assert.NoError(t, err)

	_, err = multi.Find(ctx, "ghost")
	assert.ErrorIs(t, err, ErrCandidateNotFound)

	_, err = MultiDiscovery{failingDiscoverer{}, first}.Find(ctx, "echo")
	assert.ErrorContains(t, err, "source unreachable")
}
