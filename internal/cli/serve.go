package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolhost/internal/daemon"
)

// shutdownGrace is added to the write timeout when draining on exit.
const shutdownGrace = 5 * time.Second

var (
	serveHost     string
	servePort     int
	serveToolsDir string
	serveWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load tools and serve them over HTTP",
	Long: `Load every configured tool, then serve the REST API, the per-tool MCP
endpoints and Prometheus metrics until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", -1, "listen port (overrides server.port)")
	serveCmd.Flags().StringVar(&serveToolsDir, "tools-dir", "", "plugin directory (overrides tools.dir)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload plugins when their directory changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("tools-dir") {
		cfg.Tools.Dir = serveToolsDir
	}
	if cmd.Flags().Changed("watch") {
		cfg.Tools.Watch = serveWatch
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, daemon.Options{Version: version})
	if err != nil {
		return err
	}

	if err := d.Start(cmd.Context()); err != nil {
		return fmt.Errorf("failed to start toolhost: %w", err)
	}

	return d.Wait(cfg.Server.WriteTimeout + shutdownGrace)
}
