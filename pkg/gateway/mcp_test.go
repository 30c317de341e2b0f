package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolhost/pkg/tool"
	"github.com/harun/toolhost/pkg/tools/echo"
)

// serveMCP starts env behind a real listener. Cleanups run last in, first
// out, so sessions opened afterwards close before the server does.
func serveMCP(t *testing.T, env *testEnv) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(env.server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func connectMCP(t *testing.T, url string) *mcp.ClientSession {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "toolhost-test", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: url}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestMCP_ListAndCall(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := serveMCP(t, env)

	session := connectMCP(t, ts.URL+"/mcp/echo")
	ctx := context.Background()

	listed, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(listed.Tools))
	for _, mt := range listed.Tools {
		names = append(names, mt.Name)
	}
	assert.ElementsMatch(t, []string{"echo", "reverse"}, names)

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "reverse",
		Arguments: map[string]any{"text": "abc"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.JSONEq(t, `{"text":"cba"}`, text.Text)
}

func TestMCP_ValidationFailureIsToolError(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := serveMCP(t, env)

	session := connectMCP(t, ts.URL+"/mcp/echo")

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := result.Content[0].(*mcp.TextContent)
	assert.Contains(t, text.Text, "Invalid parameters")
}

func TestMCP_UnhealthyOrUnknownTool(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registry.SetHealth("slow", false)
	ts := serveMCP(t, env)

	for _, name := range []string{"slow", "missing"} {
		resp, err := http.Post(ts.URL+"/mcp/"+name, "application/json", nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, name)
	}
}

func postSessionRequest(t *testing.T, url, sessionID string) int {
	t.Helper()
	body := `{"jsonrpc":"2.0","id":7,"method":"tools/list","params":{}}`
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestMCP_SessionsAreScopedToTheirTool(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := serveMCP(t, env)

	session := connectMCP(t, ts.URL+"/mcp/slow")
	_, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, session.ID())

	assert.Equal(t, http.StatusNotFound, postSessionRequest(t, ts.URL+"/mcp/echo", session.ID()),
		"a session opened on one tool must not resolve on another")

	env.registry.SetHealth("slow", false)
	assert.Equal(t, http.StatusNotFound, postSessionRequest(t, ts.URL+"/mcp/slow", session.ID()))
	assert.Equal(t, http.StatusNotFound, postSessionRequest(t, ts.URL+"/mcp/echo", session.ID()))
}

func TestMCP_ReplacedToolDropsSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := serveMCP(t, env)
	ctx := context.Background()

	session := connectMCP(t, ts.URL+"/mcp/echo")
	_, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	require.True(t, env.registry.Unregister("echo"))
	require.NoError(t, env.registry.Register(ctx, echo.New()))

	_, err = session.ListTools(ctx, nil)
	assert.Error(t, err, "sessions of the replaced instance must stop resolving")

	fresh := connectMCP(t, ts.URL+"/mcp/echo")
	_, err = fresh.ListTools(ctx, nil)
	assert.NoError(t, err)
}

func TestMCP_StreamDoesNotHoldConcurrencySlot(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.MaxConcurrent = 1 })
	ts := serveMCP(t, env)

	session := connectMCP(t, ts.URL+"/mcp/echo")
	_, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/tools")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSameInstance(t *testing.T) {
	a, b := echo.New(), echo.New()
	assert.True(t, sameInstance(a, a))
	assert.False(t, sameInstance(a, b))
	assert.False(t, sameInstance(a, slowTool()))
}

func TestInputSchema(t *testing.T) {
	schema := inputSchema([]tool.Param{
		{Name: "text", Type: tool.TypeString, Required: true, MaxLength: tool.Int(10)},
		{Name: "count", Type: tool.TypeInteger, Default: 3, Minimum: tool.Float(1)},
	})

	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"text"}, schema.Required)
	require.Contains(t, schema.Properties, "count")
	assert.Equal(t, "integer", schema.Properties["count"].Type)
	assert.JSONEq(t, "3", string(schema.Properties["count"].Default))
	assert.Equal(t, 10, *schema.Properties["text"].MaxLength)
}

func TestCallResult(t *testing.T) {
	ok := callResult(tool.Ok(map[string]any{"result": 5.0}))
	assert.False(t, ok.IsError)
	assert.JSONEq(t, `{"result":5}`, ok.Content[0].(*mcp.TextContent).Text)

	failed := callResult(tool.Fail(tool.KindHandler, "boom"))
	assert.True(t, failed.IsError)
	assert.Equal(t, "boom", failed.Content[0].(*mcp.TextContent).Text)
}
