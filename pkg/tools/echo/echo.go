// Package echo is the built-in string utility tool. It is also served out
// of process by cmd/toolhost-echo.
package echo

import (
	"context"
	"strings"

	"github.com/harun/toolhost/pkg/tool"
)

// Name is the registry name of the echo tool.
const Name = "echo"

// New returns the echo tool.
func New() tool.Tool {
	return &tool.Static{
		ToolName:        Name,
		ToolDescription: "Echoes and transforms text",
		ToolVersion:     "1.0.0",
		ToolMethods: []tool.Method{
			{
				Name:        "echo",
				Description: "Return the text, optionally upper-cased",
				Params: []tool.Param{
					{Name: "text", Type: tool.TypeString, Description: "Text to echo", Required: true},
					{Name: "uppercase", Type: tool.TypeBoolean, Description: "Upper-case the text", Default: false},
				},
				Handler: func(ctx context.Context, params map[string]any) (any, error) {
					text, _ := params["text"].(string)
					if upper, _ := params["uppercase"].(bool); upper {
						text = strings.ToUpper(text)
					}
					return map[string]any{"text": text}, nil
				},
			},
			{
				Name:        "reverse",
				Description: "Return the text with its characters reversed",
				Params: []tool.Param{
					{Name: "text", Type: tool.TypeString, Description: "Text to reverse", Required: true},
				},
				Handler: func(ctx context.Context, params map[string]any) (any, error) {
					text, _ := params["text"].(string)
					return map[string]any{"text": reverse(text)}, nil
				},
			},
		},
	}
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
