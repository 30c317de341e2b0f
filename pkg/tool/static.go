package tool

import "context"

// Static is a Tool assembled from plain values. It is the usual way to
// build in-process tools and test doubles.
type Static struct {
	ToolName        string
	ToolDescription string
	ToolVersion     string
	ToolMethods     []Method

	// InitFunc and HealthFunc back the optional capabilities; a nil func
	// behaves as if the capability succeeded.
	InitFunc   func(ctx context.Context) error
	HealthFunc func(ctx context.Context) (bool, error)
}

func (s *Static) Name() string        { return s.ToolName }
func (s *Static) Description() string { return s.ToolDescription }
func (s *Static) Version() string     { return s.ToolVersion }
func (s *Static) Methods() []Method   { return s.ToolMethods }

func (s *Static) Initialize(ctx context.Context) error {
	if s.InitFunc == nil {
		return nil
	}
	return s.InitFunc(ctx)
}

func (s *Static) HealthCheck(ctx context.Context) (bool, error) {
	if s.HealthFunc == nil {
		return true, nil
	}
	return s.HealthFunc(ctx)
}
