// Package executor is the isolation boundary between a caller and tool code.
//
// Invariants:
// - Resolve, validate, invoke and classify run strictly in that order.
// - Nothing a handler does (error, panic, hang) escapes Execute.
// - Only connectivity failures flip a tool's health; timeouts never do.
//
// Usage:
//
//	reg := registry.New(logger)
//	exec := executor.New(reg, executor.Options{}, logger)
//	res := exec.Execute(ctx, "calculator", "add", map[string]any{"a": 2, "b": 3}, 0)
package executor
