package tool

import (
	"encoding/json"
	"fmt"
)

// Parameter types accepted in a Param declaration.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

var validTypes = map[string]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeInteger: true,
	TypeBoolean: true,
	TypeObject:  true,
	TypeArray:   true,
}

// Param declares one input parameter of a method: its type, constraints,
// optionality and default.
type Param struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	MinLength   *int     `json:"min_length,omitempty"`
	MaxLength   *int     `json:"max_length,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
}

func (p Param) validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	if !validTypes[p.Type] {
		return fmt.Errorf("invalid parameter type %q for %s", p.Type, p.Name)
	}
	return nil
}

// Float returns a pointer to v, for Param.Minimum and Param.Maximum.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for Param.MinLength and Param.MaxLength.
func Int(v int) *int { return &v }

// Schema renders params as a JSON Schema object document. Undeclared
// properties are not constrained; StripUnknown removes them before a call.
func Schema(params []Param) map[string]any {
	properties := make(map[string]any, len(params))
	required := []string{}

	for _, p := range params {
		prop := map[string]any{
			"type": p.Type,
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		if p.MinLength != nil {
			prop["minLength"] = *p.MinLength
		}
		if p.MaxLength != nil {
			prop["maxLength"] = *p.MaxLength
		}
		if p.Pattern != "" {
			prop["pattern"] = p.Pattern
		}

		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// StripUnknown returns a copy of params holding only declared parameters.
func StripUnknown(decl []Param, params map[string]any) map[string]any {
	out := make(map[string]any, len(decl))
	for _, p := range decl {
		if v, ok := params[p.Name]; ok {
			out[p.Name] = v
		}
	}
	return out
}

// ApplyDefaults returns a copy of params with every absent optional
// parameter that declares a default filled in.
func ApplyDefaults(decl []Param, params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+len(decl))
	for k, v := range params {
		out[k] = v
	}
	for _, p := range decl {
		if p.Default == nil {
			continue
		}
		if _, ok := out[p.Name]; !ok {
			out[p.Name] = p.Default
		}
	}
	return out
}

// AsFloat converts a validated numeric parameter to float64. Values decoded
// from JSON arrive as float64; in-process callers may pass any Go number.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
