package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/toolhost/internal/tracing"
	"github.com/harun/toolhost/pkg/tool"
)

// DefaultTimeout bounds a handler when neither the caller nor Options set one.
const DefaultTimeout = 30 * time.Second

const tracerName = "github.com/harun/toolhost/pkg/executor"

// Registry is the part of the tool registry the executor depends on.
type Registry interface {
	Get(name string) (tool.Tool, bool)
	SetHealth(name string, healthy bool)
}

// Observer receives one notification per finished execution.
type Observer interface {
	ExecutionFinished(toolName, method string, result tool.Result, duration time.Duration)
}

// Observers fans one notification out to every observer in order.
type Observers []Observer

func (o Observers) ExecutionFinished(toolName, method string, result tool.Result, duration time.Duration) {
	for _, observer := range o {
		observer.ExecutionFinished(toolName, method, result, duration)
	}
}

// Options configures an Executor.
type Options struct {
	// DefaultTimeout is used when Execute is called with a non-positive timeout.
	DefaultTimeout time.Duration

	// CancelOnTimeout cancels the handler's context once the deadline fires.
	// Handlers that ignore their context keep running either way.
	CancelOnTimeout bool

	Observer Observer
}

// Executor resolves, validates, and invokes tool methods under a time bound.
type Executor struct {
	registry Registry
	opts     Options
	logger   zerolog.Logger
}

// New creates an executor reading tools from registry.
func New(registry Registry, opts Options, logger zerolog.Logger) *Executor {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	return &Executor{
		registry: registry,
		opts:     opts,
		logger:   logger.With().Str("component", "tool-executor").Logger(),
	}
}

// DefaultTimeout returns the timeout applied when a call does not set one.
func (e *Executor) DefaultTimeout() time.Duration {
	return e.opts.DefaultTimeout
}

type outcome struct {
	data any
	err  error
}

// Execute calls method of the tool registered as toolName. It never panics
// and never returns an error: every failure is reported in the Result.
//
// When the deadline fires first, the handler's eventual outcome is
// discarded; its work is not stopped unless CancelOnTimeout is set and the
// handler honours its context.
func (e *Executor) Execute(ctx context.Context, toolName, methodName string, params map[string]any, timeout time.Duration) tool.Result {
	startTime := time.Now()
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout
	}

	ctx = tracing.WithExecutionID(ctx, tracing.NewExecutionID())
	ctx, span := tracing.StartSpan(ctx, tracerName, "tool.execute",
		attribute.String("tool.name", toolName),
		attribute.String("tool.method", methodName),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, e.logger).With().
		Str("tool", toolName).
		Str("method", methodName).
		Logger()

	result := e.execute(ctx, logger, toolName, methodName, params, timeout)
	duration := time.Since(startTime)

	if result.Success {
		span.SetStatus(codes.Ok, "")
		logger.Info().Dur("duration", duration).Msg("Tool execution completed")
	} else {
		span.SetAttributes(attribute.String("tool.error_kind", string(result.Kind)))
		span.SetStatus(codes.Error, result.Error)
		logger.Error().
			Dur("duration", duration).
			Str("kind", string(result.Kind)).
			Str("error", result.Error).
			Msg("Tool execution failed")
	}

	if e.opts.Observer != nil {
		e.opts.Observer.ExecutionFinished(toolName, methodName, result, duration)
	}

	return result
}

func (e *Executor) execute(ctx context.Context, logger zerolog.Logger, toolName, methodName string, params map[string]any, timeout time.Duration) tool.Result {
	t, ok := e.registry.Get(toolName)
	if !ok {
		return tool.Fail(tool.KindNotFound, fmt.Sprintf("Tool '%s' not found", toolName))
	}

	method, ok := tool.FindMethod(t, methodName)
	if !ok {
		return tool.Fail(tool.KindNotFound, fmt.Sprintf("Method '%s.%s' not found", toolName, methodName))
	}

	validated, err := validateParams(method.Params, params)
	if err != nil {
		return tool.Fail(tool.KindValidation, err.Error())
	}

	logger.Debug().Dur("timeout", timeout).Msg("Executing tool")

	data, err := e.invoke(ctx, method.Handler, validated, timeout)
	if err == nil {
		return tool.Ok(data)
	}

	kind := Classify(err)
	if kind == tool.KindCritical {
		logger.Warn().Err(err).Msg("Critical tool failure, marking tool unhealthy")
		e.registry.SetHealth(toolName, false)
	}
	return tool.Fail(kind, err.Error())
}

// invoke races handler against the deadline and the caller's context.
func (e *Executor) invoke(ctx context.Context, handler tool.Handler, params map[string]any, timeout time.Duration) (any, error) {
	handlerCtx := context.WithoutCancel(ctx)
	if e.opts.CancelOnTimeout {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		var out outcome
		if recovered := panics.Try(func() {
			out.data, out.err = handler(handlerCtx, params)
		}); recovered != nil {
			out.err = recovered.AsError()
		}
		done <- out
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.data, out.err
	case <-timer.C:
		return nil, fmt.Errorf("%w after %dms", tool.ErrTimeout, timeout.Milliseconds())
	case <-ctx.Done():
		return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
	}
}

func validateParams(decl []tool.Param, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	withDefaults := tool.ApplyDefaults(decl, tool.StripUnknown(decl, params))

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.Schema(decl)))
	if err != nil {
		return nil, fmt.Errorf("%s: schema error: %v", invalidParamsPrefix, err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(withDefaults))
	if err != nil {
		return nil, fmt.Errorf("%s: %v", invalidParamsPrefix, err)
	}
	if !result.Valid() {
		diagnostics := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			diagnostics = append(diagnostics, desc.String())
		}
		return nil, fmt.Errorf("%s: %s", invalidParamsPrefix, strings.Join(diagnostics, "; "))
	}

	return withDefaults, nil
}

const invalidParamsPrefix = "Invalid parameters"

// IsTimeout reports whether err signals an expired deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, tool.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
