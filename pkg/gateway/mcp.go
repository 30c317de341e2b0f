package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harun/toolhost/pkg/tool"
)

// mcpEndpoint is the streamable handler of one registered tool instance.
// Its sessions are unknown to every other endpoint.
type mcpEndpoint struct {
	tool    tool.Tool
	handler http.Handler
}

// mcpEndpoints keeps one endpoint per tool name.
type mcpEndpoints struct {
	mu        sync.Mutex
	endpoints map[string]*mcpEndpoint
}

func newMCPEndpoints() *mcpEndpoints {
	return &mcpEndpoints{endpoints: make(map[string]*mcpEndpoint)}
}

// get returns the endpoint serving t, building a fresh one when the name
// is new or the registry now holds a different instance.
func (e *mcpEndpoints) get(name string, t tool.Tool, build func(tool.Tool) *mcp.Server) http.Handler {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ep, ok := e.endpoints[name]; ok && sameInstance(ep.tool, t) {
		return ep.handler
	}

	server := build(t)
	ep := &mcpEndpoint{
		tool: t,
		handler: mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return server
		}, nil),
	}
	e.endpoints[name] = ep
	return ep.handler
}

// drop forgets the endpoint of name; its sessions stop resolving.
func (e *mcpEndpoints) drop(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.endpoints, name)
}

// sameInstance compares pointer-shaped tools by identity. Other shapes are
// matched by name alone and rely on drop after a reload.
func sameInstance(a, b tool.Tool) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if ta.Kind() != reflect.Pointer {
		return true
	}
	return a == b
}

// mcpHandler serves /mcp/{tool}: each healthy tool is its own MCP server
// whose MCP tools are the tool's methods.
func (s *Server) mcpHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "tool")
		t, ok := s.registry.Get(name)
		if !ok {
			s.mcp.drop(name)
		}
		if !ok || !s.registry.IsHealthy(name) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Tool '%s' not found or unhealthy", name))
			return
		}

		// Event streams stay open past the server's write timeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		s.mcp.get(name, t, s.newMCPServer).ServeHTTP(w, r)
	})
}

func (s *Server) newMCPServer(t tool.Tool) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: t.Name(), Version: t.Version()}, nil)

	toolName := t.Name()
	for _, m := range t.Methods() {
		method := m.Name
		server.AddTool(&mcp.Tool{
			Name:        method,
			Description: m.Description,
			InputSchema: inputSchema(m.Params),
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			params := map[string]any{}
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
					return errorResult("Invalid parameters: " + err.Error()), nil
				}
			}
			return callResult(s.executor.Execute(ctx, toolName, method, params, 0)), nil
		})
	}

	return server
}

func callResult(result tool.Result) *mcp.CallToolResult {
	if !result.Success {
		return errorResult(result.Error)
	}

	text, err := json.Marshal(result.Data)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to encode result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}

// inputSchema renders method params for MCP clients. Validation still
// happens in the executor, so only the descriptive subset is carried.
func inputSchema(params []tool.Param) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(params)),
	}

	for _, p := range params {
		prop := &jsonschema.Schema{
			Type:        p.Type,
			Description: p.Description,
			Enum:        p.Enum,
			Minimum:     p.Minimum,
			Maximum:     p.Maximum,
			MinLength:   p.MinLength,
			MaxLength:   p.MaxLength,
			Pattern:     p.Pattern,
		}
		if p.Default != nil {
			if raw, err := json.Marshal(p.Default); err == nil {
				prop.Default = raw
			}
		}
		schema.Properties[p.Name] = prop
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}

	return schema
}
