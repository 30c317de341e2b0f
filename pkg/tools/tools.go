// Package tools is the catalog of tools compiled into the host.
package tools

import (
	"sort"

	"github.com/harun/toolhost/pkg/tool"
	"github.com/harun/toolhost/pkg/tools/calculator"
	"github.com/harun/toolhost/pkg/tools/echo"
	"github.com/harun/toolhost/pkg/tools/timezone"
)

var catalog = map[string]func() tool.Tool{
	calculator.Name: calculator.New,
	echo.Name:       echo.New,
	timezone.Name:   timezone.New,
}

// Lookup returns the constructor of the built-in tool called name.
func Lookup(name string) (func() tool.Tool, bool) {
	newTool, ok := catalog[name]
	return newTool, ok
}

// Names returns every built-in tool name in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
