// Command toolhost-echo serves the echo tool as a directory plugin. Put the
// binary next to a tool.json whose name is "echo" and main points at it.
package main

import (
	"github.com/harun/toolhost/pkg/plugin"
	"github.com/harun/toolhost/pkg/tools/echo"
)

func main() {
	plugin.Serve(echo.New())
}
