package plugin

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	"github.com/rs/zerolog"

	"github.com/harun/toolhost/pkg/tool"
)

// Serve exposes t to a toolhost process over RPC. It blocks until the host
// disconnects and is meant to be called from a tool binary's main.
func Serve(t tool.Tool) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			dispenseName: &ToolRPCPlugin{Impl: t},
		},
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:       t.Name(),
			Output:     os.Stderr,
			Level:      hclog.Info,
			JSONFormat: true,
		}),
	})
}

// newHCLogAdapter routes go-plugin's own logging into logger.
func newHCLogAdapter(logger zerolog.Logger) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "go-plugin",
		Output: logger.With().Str("component", "go-plugin").Logger(),
		Level:  hclog.Warn,
	})
}
