package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolhost/pkg/registry"
	"github.com/harun/toolhost/pkg/tool"
)

func number(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func calcTool() *tool.Static {
	return &tool.Static{
		ToolName:    "calc",
		ToolVersion: "1.0.0",
		ToolMethods: []tool.Method{
			{
				Name:        "add",
				Description: "Add two numbers",
				Params: []tool.Param{
					{Name: "a", Type: tool.TypeNumber, Required: true},
					{Name: "b", Type: tool.TypeNumber, Required: true},
				},
				Handler: func(ctx context.Context, params map[string]any) (any, error) {
					return map[string]any{"result": number(params["a"]) + number(params["b"])}, nil
				},
			},
		},
	}
}

func newTestExecutor(t *testing.T, opts Options, tools ...tool.Tool) (*Executor, *registry.Registry) {
	t.Helper()
	reg := registry.New(zerolog.Nop())
	for _, tl := range tools {
		require.NoError(t, reg.Register(context.Background(), tl))
	}
	return New(reg, opts, zerolog.Nop()), reg
}

func methodTool(name string, handler tool.Handler) *tool.Static {
	return &tool.Static{
		ToolName:    name,
		ToolVersion: "1.0.0",
		ToolMethods: []tool.Method{{Name: "run", Handler: handler}},
	}
}

func TestExecutor_EndToEnd(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{}, calcTool())
	ctx := context.Background()

	result := exec.Execute(ctx, "calc", "add", map[string]any{"a": 2, "b": 3}, 0)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, map[string]any{"result": 5.0}, result.Data)
	assert.Empty(t, result.Error)

	result = exec.Execute(ctx, "calc", "add", map[string]any{"a": 2}, 0)
	assert.False(t, result.Success)
	assert.Equal(t, tool.KindValidation, result.Kind)
	assert.Regexp(t, `^Invalid parameters`, result.Error)
}

func TestExecutor_NotFound(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{}, calcTool())
	ctx := context.Background()

	t.Run("unknown tool", func(t *testing.T) {
		for _, name := range []string{"ghost", "weather", "calc2"} {
			result := exec.Execute(ctx, name, "add", map[string]any{}, 0)
			assert.False(t, result.Success)
			assert.Equal(t, tool.KindNotFound, result.Kind)
			assert.Equal(t, fmt.Sprintf("Tool '%s' not found", name), result.Error)
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		result := exec.Execute(ctx, "calc", "divide", map[string]any{}, 0)
		assert.False(t, result.Success)
		assert.Equal(t, tool.KindNotFound, result.Kind)
		assert.Contains(t, result.Error, "calc.divide")
	})
}

func TestExecutor_Validation(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{}, calcTool())
	ctx := context.Background()

	tests := []struct {
		name   string
		params map[string]any
	}{
		{name: "missing parameter", params: map[string]any{}},
		{name: "nil params", params: nil},
		{name: "wrong type", params: map[string]any{"a": "x", "b": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := exec.Execute(ctx, "calc", "add", tt.params, 0)
			assert.False(t, result.Success)
			assert.Equal(t, tool.KindValidation, result.Kind)
			assert.Regexp(t, `^Invalid parameters: `, result.Error)
		})
	}
}

func TestExecutor_Defaults(t *testing.T) {
	var got map[string]any
	echo := &tool.Static{
		ToolName: "echo",
		ToolMethods: []tool.Method{{
			Name: "echo",
			Params: []tool.Param{
				{Name: "text", Type: tool.TypeString, Required: true},
				{Name: "uppercase", Type: tool.TypeBoolean, Default: false},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				got = params
				return params["text"], nil
			},
		}},
	}
	exec, _ := newTestExecutor(t, Options{}, echo)

	result := exec.Execute(context.Background(), "echo", "echo", map[string]any{"text": "hi"}, 0)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, map[string]any{"text": "hi", "uppercase": false}, got)

	result = exec.Execute(context.Background(), "echo", "echo", map[string]any{"text": "hi", "color": "red"}, 0)
	require.True(t, result.Success, "undeclared parameters are dropped, not rejected: %s", result.Error)
	assert.Equal(t, map[string]any{"text": "hi", "uppercase": false}, got)
}

func TestExecutor_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	slow := methodTool("slow", func(ctx context.Context, params map[string]any) (any, error) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		return "late", nil
	})
	exec, reg := newTestExecutor(t, Options{}, slow)

	start := time.Now()
	result := exec.Execute(context.Background(), "slow", "run", nil, 50*time.Millisecond)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, result.Success)
	assert.Equal(t, tool.KindTimeout, result.Kind)
	assert.Equal(t, "Execution timeout after 50ms", result.Error)
	assert.True(t, reg.IsHealthy("slow"), "timeouts must not affect health")
}

func TestExecutor_TimeoutDoesNotCancelHandler(t *testing.T) {
	cancelled := make(chan bool, 1)
	slow := methodTool("slow", func(ctx context.Context, params map[string]any) (any, error) {
		select {
		case <-ctx.Done():
			cancelled <- true
		case <-time.After(200 * time.Millisecond):
			cancelled <- false
		}
		return nil, nil
	})

	t.Run("fire and forget", func(t *testing.T) {
		exec, _ := newTestExecutor(t, Options{}, slow)
		result := exec.Execute(context.Background(), "slow", "run", nil, 10*time.Millisecond)
		assert.Equal(t, tool.KindTimeout, result.Kind)
		assert.False(t, <-cancelled, "handler context must stay alive after the deadline")
	})

	t.Run("cancel on timeout", func(t *testing.T) {
		exec, _ := newTestExecutor(t, Options{CancelOnTimeout: true}, slow)
		result := exec.Execute(context.Background(), "slow", "run", nil, 10*time.Millisecond)
		assert.Equal(t, tool.KindTimeout, result.Kind)
		assert.True(t, <-cancelled, "cooperating handler should observe cancellation")
	})
}

func TestExecutor_DefaultTimeout(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{})
	assert.Equal(t, 30*time.Second, exec.DefaultTimeout())

	slow := methodTool("slow", func(ctx context.Context, params map[string]any) (any, error) {
		time.Sleep(time.Second)
		return nil, nil
	})
	exec, _ = newTestExecutor(t, Options{DefaultTimeout: 20 * time.Millisecond}, slow)
	result := exec.Execute(context.Background(), "slow", "run", nil, 0)
	assert.Equal(t, tool.KindTimeout, result.Kind)
	assert.Contains(t, result.Error, "20ms")
}

func TestExecutor_HandlerFailures(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    tool.ErrorKind
		wantHealthy bool
	}{
		{name: "domain error", err: errors.New("division by zero"), wantKind: tool.KindHandler, wantHealthy: true},
		{name: "connection refused text", err: errors.New("connect ECONNREFUSED 127.0.0.1:5432"), wantKind: tool.KindCritical, wantHealthy: false},
		{name: "dns text", err: errors.New("getaddrinfo ENOTFOUND api.example.com"), wantKind: tool.KindCritical, wantHealthy: false},
		{name: "syscall refused", err: fmt.Errorf("dial: %w", &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}), wantKind: tool.KindCritical, wantHealthy: false},
		{name: "dns not found", err: &net.DNSError{Err: "no such host", Name: "db.internal", IsNotFound: true}, wantKind: tool.KindCritical, wantHealthy: false},
		{name: "handler timeout text", err: errors.New("upstream request timeout"), wantKind: tool.KindTimeout, wantHealthy: true},
		{name: "dial i/o timeout", err: errors.New("dial tcp 10.0.0.1:443: i/o timeout"), wantKind: tool.KindTimeout, wantHealthy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failing := methodTool("failing", func(ctx context.Context, params map[string]any) (any, error) {
				return nil, tt.err
			})
			exec, reg := newTestExecutor(t, Options{}, failing)

			result := exec.Execute(context.Background(), "failing", "run", nil, 0)
			assert.False(t, result.Success)
			assert.Equal(t, tt.wantKind, result.Kind)
			assert.Equal(t, tt.err.Error(), result.Error)
			assert.Equal(t, tt.wantHealthy, reg.IsHealthy("failing"))
		})
	}
}

func TestExecutor_CriticalFailureExcludesFromHealthy(t *testing.T) {
	refused := methodTool("db", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("connection refused")
	})
	domain := methodTool("calc", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("bad expression")
	})
	exec, reg := newTestExecutor(t, Options{}, refused, domain)

	exec.Execute(context.Background(), "db", "run", nil, 0)
	exec.Execute(context.Background(), "calc", "run", nil, 0)

	var healthy []string
	for _, tl := range reg.Healthy() {
		healthy = append(healthy, tl.Name())
	}
	assert.Equal(t, []string{"calc"}, healthy)
}

func TestExecutor_Panic(t *testing.T) {
	panicky := methodTool("panicky", func(ctx context.Context, params map[string]any) (any, error) {
		panic("nil map write")
	})
	exec, reg := newTestExecutor(t, Options{}, panicky)

	result := exec.Execute(context.Background(), "panicky", "run", nil, 0)
	assert.False(t, result.Success)
	assert.Equal(t, tool.KindHandler, result.Kind)
	assert.Contains(t, result.Error, "nil map write")
	assert.True(t, reg.IsHealthy("panicky"))
}

func TestExecutor_CallerCancellation(t *testing.T) {
	blocked := methodTool("blocked", func(ctx context.Context, params map[string]any) (any, error) {
		time.Sleep(time.Second)
		return nil, nil
	})
	exec, reg := newTestExecutor(t, Options{}, blocked)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := exec.Execute(ctx, "blocked", "run", nil, 0)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "cancelled")
	assert.True(t, reg.IsHealthy("blocked"))
}

type recordingObserver struct {
	mu      sync.Mutex
	results []tool.Result
}

func (o *recordingObserver) ExecutionFinished(toolName, method string, result tool.Result, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func TestExecutor_Observer(t *testing.T) {
	obs := &recordingObserver{}
	exec, _ := newTestExecutor(t, Options{Observer: obs}, calcTool())

	exec.Execute(context.Background(), "calc", "add", map[string]any{"a": 1, "b": 1}, 0)
	exec.Execute(context.Background(), "ghost", "add", nil, 0)

	require.Len(t, obs.results, 2)
	assert.True(t, obs.results[0].Success)
	assert.Equal(t, tool.KindNotFound, obs.results[1].Kind)
}

func TestExecutor_ConcurrentCalls(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{}, calcTool())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result := exec.Execute(context.Background(), "calc", "add", map[string]any{"a": i, "b": 1}, 0)
			assert.True(t, result.Success)
			assert.Equal(t, map[string]any{"result": float64(i + 1)}, result.Data)
		}(i)
	}
	wg.Wait()
}

func TestClassify(t *testing.T) {
	assert.Equal(t, tool.ErrorKind(""), Classify(nil))
	assert.Equal(t, tool.KindTimeout, Classify(fmt.Errorf("%w after 10ms", tool.ErrTimeout)))
	assert.Equal(t, tool.KindTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, tool.KindCritical, Classify(errors.New("dial tcp: lookup db: no such host")))
	assert.Equal(t, tool.KindHandler, Classify(errors.New("invalid timezone")))
}
