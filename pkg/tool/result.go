package tool

import "errors"

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrMethodNotFound = errors.New("method not found")
	ErrInvalidParams  = errors.New("invalid parameters")
	ErrTimeout        = errors.New("Execution timeout")
	ErrInvalidTool    = errors.New("invalid tool")
)

// ErrorKind classifies a failed Result.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindValidation ErrorKind = "validation"
	KindTimeout    ErrorKind = "timeout"
	KindHandler    ErrorKind = "handler"
	KindCritical   ErrorKind = "critical"
)

// Result is the uniform outcome of an execution.
type Result struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   string    `json:"error,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
}

// Ok builds a successful Result.
func Ok(data any) Result {
	return Result{Success: true, Data: data}
}

// Fail builds a failed Result of the given kind.
func Fail(kind ErrorKind, msg string) Result {
	return Result{Success: false, Error: msg, Kind: kind}
}

// Status is the read-only view of one registry entry.
type Status struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version"`
	Healthy     bool     `json:"healthy"`
	Methods     []string `json:"methods"`
}
