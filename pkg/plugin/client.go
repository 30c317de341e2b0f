package plugin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-plugin"
	"github.com/rs/zerolog"

	"github.com/harun/toolhost/pkg/tool"
)

// Remote is the host-side view of a tool served by another process.
type Remote interface {
	Describe(ctx context.Context) (Descriptor, error)
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) (bool, error)
	Invoke(ctx context.Context, method string, params map[string]any) (any, error)
}

// Client adapts a Remote into a tool.Tool. Its method handlers forward
// calls over RPC; Close terminates the tool process.
type Client struct {
	descriptor Descriptor
	remote     Remote
	kill       func()
	logger     zerolog.Logger

	closeOnce sync.Once
}

// NewClient describes remote and returns a tool backed by it. kill, when
// non-nil, is run once by Close.
func NewClient(ctx context.Context, remote Remote, kill func(), logger zerolog.Logger) (*Client, error) {
	descriptor, err := remote.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe tool: %w", err)
	}

	return &Client{
		descriptor: descriptor,
		remote:     remote,
		kill:       kill,
		logger:     logger.With().Str("component", "plugin-client").Str("tool", descriptor.Name).Logger(),
	}, nil
}

// Launch starts the executable at path, performs the handshake, and
// returns the tool it serves.
func Launch(ctx context.Context, path string, logger zerolog.Logger) (*Client, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("tool executable not found: %s", path)
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap,
		Cmd:              exec.Command(path),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger:           newHCLogAdapter(logger),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to tool process: %w", err)
	}

	raw, err := rpcClient.Dispense(dispenseName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense tool: %w", err)
	}

	remote, ok := raw.(*ToolRPCClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("unexpected plugin type %T", raw)
	}

	c, err := NewClient(ctx, remote, client.Kill, logger)
	if err != nil {
		client.Kill()
		return nil, err
	}

	c.logger.Info().
		Str("path", path).
		Str("version", c.descriptor.Version).
		Msg("Tool process started")

	return c, nil
}

func (c *Client) Name() string        { return c.descriptor.Name }
func (c *Client) Description() string { return c.descriptor.Description }
func (c *Client) Version() string     { return c.descriptor.Version }

func (c *Client) Methods() []tool.Method {
	methods := make([]tool.Method, 0, len(c.descriptor.Methods))
	for _, m := range c.descriptor.Methods {
		name := m.Name
		methods = append(methods, tool.Method{
			Name:        name,
			Description: m.Description,
			Params:      m.Params,
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				return c.remote.Invoke(ctx, name, params)
			},
		})
	}
	return methods
}

func (c *Client) Initialize(ctx context.Context) error {
	return c.remote.Initialize(ctx)
}

func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	return c.remote.HealthCheck(ctx)
}

// Close stops the tool process. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.kill != nil {
			c.kill()
			c.logger.Info().Msg("Tool process stopped")
		}
	})
	return nil
}
