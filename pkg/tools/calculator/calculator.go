// Package calculator is the built-in arithmetic tool.
package calculator

import (
	"context"
	"fmt"
	"math"

	"github.com/harun/toolhost/pkg/tool"
)

// Name is the registry name of the calculator tool.
const Name = "calculator"

// New returns the calculator tool.
func New() tool.Tool {
	return &tool.Static{
		ToolName:        Name,
		ToolDescription: "Evaluates arithmetic expressions",
		ToolVersion:     "1.0.0",
		ToolMethods: []tool.Method{
			{
				Name:        "evaluate",
				Description: "Evaluate an expression using + - * / % ^, parentheses, pi, e and sqrt/abs/floor/ceil/round/min/max",
				Params: []tool.Param{
					{
						Name:        "expression",
						Type:        tool.TypeString,
						Description: "Expression to evaluate, e.g. (2 + 3) * 4",
						Required:    true,
						MinLength:   tool.Int(1),
						MaxLength:   tool.Int(1024),
					},
				},
				Handler: evaluate,
			},
			{
				Name:        "add",
				Description: "Add two numbers",
				Params: []tool.Param{
					{Name: "a", Type: tool.TypeNumber, Description: "First addend", Required: true},
					{Name: "b", Type: tool.TypeNumber, Description: "Second addend", Required: true},
				},
				Handler: add,
			},
		},
	}
}

func evaluate(ctx context.Context, params map[string]any) (any, error) {
	expression, _ := params["expression"].(string)
	result, err := Evaluate(expression)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}

func add(ctx context.Context, params map[string]any) (any, error) {
	a, ok := tool.AsFloat(params["a"])
	if !ok {
		return nil, fmt.Errorf("a must be a number")
	}
	b, ok := tool.AsFloat(params["b"])
	if !ok {
		return nil, fmt.Errorf("b must be a number")
	}
	sum := a + b
	if math.IsInf(sum, 0) || math.IsNaN(sum) {
		return nil, fmt.Errorf("result is not a finite number")
	}
	return map[string]any{"result": sum}, nil
}
