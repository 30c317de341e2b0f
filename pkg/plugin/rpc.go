package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/rpc"

	"github.com/hashicorp/go-plugin"

	"github.com/harun/toolhost/pkg/tool"
)

// Handshake is used to verify that the tool binary and host are compatible
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "TOOLHOST_PLUGIN",
	MagicCookieValue: "toolhost-tool-v1",
}

const dispenseName = "tool"

// PluginMap is the map of plugins we can dispense
var PluginMap = map[string]plugin.Plugin{
	dispenseName: &ToolRPCPlugin{},
}

// ToolRPCPlugin is the implementation of plugin.Plugin for RPC
type ToolRPCPlugin struct {
	Impl tool.Tool
}

func (p *ToolRPCPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &ToolRPCServer{Impl: p.Impl}, nil
}

func (p *ToolRPCPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ToolRPCClient{client: c}, nil
}

// Descriptor is the wire form of a tool's identity and method listing.
type Descriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Version     string             `json:"version"`
	Methods     []MethodDescriptor `json:"methods"`
}

// MethodDescriptor describes one method without its handler.
type MethodDescriptor struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Params      []tool.Param `json:"params,omitempty"`
}

func describe(t tool.Tool) Descriptor {
	d := Descriptor{
		Name:        t.Name(),
		Description: t.Description(),
		Version:     t.Version(),
	}
	for _, m := range t.Methods() {
		d.Methods = append(d.Methods, MethodDescriptor{
			Name:        m.Name,
			Description: m.Description,
			Params:      m.Params,
		})
	}
	return d
}

// ToolRPCServer is the RPC server that ToolRPCClient talks to
type ToolRPCServer struct {
	Impl tool.Tool
}

// DescribeResp carries a JSON encoded Descriptor.
type DescribeResp struct {
	Descriptor []byte
}

func (s *ToolRPCServer) Describe(args interface{}, resp *DescribeResp) error {
	data, err := json.Marshal(describe(s.Impl))
	if err != nil {
		return err
	}
	resp.Descriptor = data
	return nil
}

// ErrorResp carries the text of a capability error; empty means success.
type ErrorResp struct {
	Error string
}

func (s *ToolRPCServer) Initialize(args interface{}, resp *ErrorResp) error {
	if init, ok := s.Impl.(tool.Initializer); ok {
		if err := init.Initialize(context.Background()); err != nil {
			resp.Error = err.Error()
		}
	}
	return nil
}

// HealthResp is the response for HealthCheck RPC call
type HealthResp struct {
	Healthy bool
	Error   string
}

func (s *ToolRPCServer) HealthCheck(args interface{}, resp *HealthResp) error {
	checker, ok := s.Impl.(tool.HealthChecker)
	if !ok {
		resp.Healthy = true
		return nil
	}
	healthy, err := checker.HealthCheck(context.Background())
	resp.Healthy = healthy
	if err != nil {
		resp.Error = err.Error()
	}
	return nil
}

// InvokeArgs are the arguments for Invoke RPC call
type InvokeArgs struct {
	Method string
	Params []byte
}

// InvokeResp is the response for Invoke RPC call
type InvokeResp struct {
	Data  []byte
	Error string
}

func (s *ToolRPCServer) Invoke(args *InvokeArgs, resp *InvokeResp) error {
	method, ok := tool.FindMethod(s.Impl, args.Method)
	if !ok {
		resp.Error = fmt.Sprintf("Method '%s.%s' not found", s.Impl.Name(), args.Method)
		return nil
	}

	params := map[string]any{}
	if len(args.Params) > 0 {
		if err := json.Unmarshal(args.Params, &params); err != nil {
			resp.Error = fmt.Sprintf("failed to decode params: %v", err)
			return nil
		}
	}
	if params == nil {
		params = map[string]any{}
	}

	data, err := method.Handler(context.Background(), params)
	if err != nil {
		resp.Error = err.Error()
		return nil
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		resp.Error = fmt.Sprintf("failed to encode result: %v", err)
		return nil
	}
	resp.Data = encoded
	return nil
}

// ToolRPCClient is the RPC client that talks to ToolRPCServer
type ToolRPCClient struct {
	client *rpc.Client
}

func (c *ToolRPCClient) Describe(ctx context.Context) (Descriptor, error) {
	var resp DescribeResp
	if err := c.call(ctx, "Plugin.Describe", new(interface{}), &resp); err != nil {
		return Descriptor{}, err
	}

	var d Descriptor
	if err := json.Unmarshal(resp.Descriptor, &d); err != nil {
		return Descriptor{}, fmt.Errorf("failed to decode descriptor: %w", err)
	}
	return d, nil
}

func (c *ToolRPCClient) Initialize(ctx context.Context) error {
	var resp ErrorResp
	if err := c.call(ctx, "Plugin.Initialize", new(interface{}), &resp); err != nil {
		return err
	}
	return remoteError(resp.Error)
}

func (c *ToolRPCClient) HealthCheck(ctx context.Context) (bool, error) {
	var resp HealthResp
	if err := c.call(ctx, "Plugin.HealthCheck", new(interface{}), &resp); err != nil {
		return false, err
	}
	return resp.Healthy, remoteError(resp.Error)
}

func (c *ToolRPCClient) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}

	var resp InvokeResp
	if err := c.call(ctx, "Plugin.Invoke", &InvokeArgs{Method: method, Params: encoded}, &resp); err != nil {
		return nil, err
	}
	if err := remoteError(resp.Error); err != nil {
		return nil, err
	}

	var data any
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return data, nil
}

// call issues an RPC and gives up waiting when ctx ends. net/rpc has no
// cancellation, so the remote side keeps running.
func (c *ToolRPCClient) call(ctx context.Context, method string, args, reply interface{}) error {
	pending := c.client.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case call := <-pending.Done:
		return call.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}

type remoteErr struct{ msg string }

func (e *remoteErr) Error() string { return e.msg }

func remoteError(msg string) error {
	if msg == "" {
		return nil
	}
	return &remoteErr{msg: msg}
}
