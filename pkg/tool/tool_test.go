package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, params map[string]any) (any, error) { return nil, nil }

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		tool    Tool
		wantErr string
	}{
		{
			name: "valid tool",
			tool: &Static{ToolName: "calc", ToolMethods: []Method{
				{Name: "add", Handler: noop, Params: []Param{{Name: "a", Type: TypeNumber, Required: true}}},
			}},
		},
		{
			name:    "nil tool",
			tool:    nil,
			wantErr: "tool is nil",
		},
		{
			name:    "empty name",
			tool:    &Static{ToolMethods: []Method{{Name: "add", Handler: noop}}},
			wantErr: "name cannot be empty",
		},
		{
			name:    "no method listing",
			tool:    &Static{ToolName: "calc"},
			wantErr: "does not list any methods",
		},
		{
			name:    "duplicate method",
			tool:    &Static{ToolName: "calc", ToolMethods: []Method{{Name: "add", Handler: noop}, {Name: "add", Handler: noop}}},
			wantErr: "declares method add twice",
		},
		{
			name:    "missing handler",
			tool:    &Static{ToolName: "calc", ToolMethods: []Method{{Name: "add"}}},
			wantErr: "has no handler",
		},
		{
			name: "bad parameter type",
			tool: &Static{ToolName: "calc", ToolMethods: []Method{
				{Name: "add", Handler: noop, Params: []Param{{Name: "a", Type: "float"}}},
			}},
			wantErr: "invalid parameter type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.tool)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTool)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSchema(t *testing.T) {
	schema := Schema([]Param{
		{Name: "a", Type: TypeNumber, Required: true, Minimum: Float(0)},
		{Name: "mode", Type: TypeString, Default: "fast", Enum: []any{"fast", "slow"}},
	})

	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "additionalProperties")
	assert.Equal(t, []string{"a"}, schema["required"])

	props := schema["properties"].(map[string]any)
	a := props["a"].(map[string]any)
	assert.Equal(t, 0.0, a["minimum"])
	mode := props["mode"].(map[string]any)
	assert.Equal(t, "fast", mode["default"])
}

func TestStripUnknown(t *testing.T) {
	decl := []Param{
		{Name: "text", Type: TypeString, Required: true},
		{Name: "uppercase", Type: TypeBoolean},
	}

	in := map[string]any{"text": "hi", "color": "red"}
	assert.Equal(t, map[string]any{"text": "hi"}, StripUnknown(decl, in))
	assert.Contains(t, in, "color", "the input is not modified")
	assert.Empty(t, StripUnknown(decl, nil))
}

func TestApplyDefaults(t *testing.T) {
	decl := []Param{
		{Name: "text", Type: TypeString, Required: true},
		{Name: "uppercase", Type: TypeBoolean, Default: false},
	}

	in := map[string]any{"text": "hi"}
	out := ApplyDefaults(decl, in)

	assert.Equal(t, map[string]any{"text": "hi", "uppercase": false}, out)
	assert.NotContains(t, in, "uppercase", "input map must not be mutated")

	out = ApplyDefaults(decl, map[string]any{"text": "hi", "uppercase": true})
	assert.Equal(t, true, out["uppercase"])
}

func TestFindMethodAndNames(t *testing.T) {
	calc := &Static{ToolName: "calc", ToolMethods: []Method{
		{Name: "add", Handler: noop},
		{Name: "evaluate", Handler: noop},
	}}

	m, ok := FindMethod(calc, "evaluate")
	assert.True(t, ok)
	assert.Equal(t, "evaluate", m.Name)

	_, ok = FindMethod(calc, "divide")
	assert.False(t, ok)

	assert.Equal(t, []string{"add", "evaluate"}, MethodNames(calc))
}

func TestAsFloat(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{in: 2.5, want: 2.5, ok: true},
		{in: 3, want: 3, ok: true},
		{in: int64(-4), want: -4, ok: true},
		{in: json.Number("1e3"), want: 1000, ok: true},
		{in: json.Number("abc"), ok: false},
		{in: "5", ok: false},
		{in: nil, ok: false},
	}
	for _, tt := range tests {
		got, ok := AsFloat(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}
