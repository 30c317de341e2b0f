package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolhost/internal/daemon"
	"github.com/harun/toolhost/pkg/loader"
)

var (
	toolsJSON   bool
	callParams  string
	callTimeout time.Duration
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and run tools without starting the server",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Load every configured tool and list it",
	Long: `Load every configured tool in-process, print its name, version, health
and methods, then list the tools that failed to load with their errors.`,
	Args: cobra.NoArgs,
	RunE: runToolsList,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <tool> <method>",
	Short: "Execute one tool method and print the result",
	Args:  cobra.ExactArgs(2),
	RunE:  runToolsCall,
}

func init() {
	toolsListCmd.Flags().BoolVar(&toolsJSON, "json", false, "print JSON instead of a table")
	toolsCallCmd.Flags().StringVar(&callParams, "params", "{}", "method parameters as a JSON object")
	toolsCallCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "execution timeout (default tools.default_timeout_ms)")
	toolsCmd.AddCommand(toolsListCmd, toolsCallCmd)
	rootCmd.AddCommand(toolsCmd)
}

// withLoadedTools loads the configured tools in-process, runs fn and
// closes every tool afterwards.
func withLoadedTools(ctx context.Context, fn func(d *daemon.Daemon, result loader.LoadResult) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if logLevel == "" {
		cfg.Logging.Level = "error"
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
	defer d.Close()

	result := d.GetLoader().LoadAll(ctx)
	defer d.GetLoader().Shutdown()

	return fn(d, result)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	return withLoadedTools(cmd.Context(), func(d *daemon.Daemon, result loader.LoadResult) error {
		statuses := d.GetRegistry().AllStatus()
		out := cmd.OutOrStdout()

		if toolsJSON {
			errs := make(map[string]string, len(result.Errors))
			for name, err := range result.Errors {
				errs[name] = err.Error()
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"tools": statuses, "failed": errs})
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tHEALTHY\tMETHODS")
		for _, s := range statuses {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", s.Name, s.Version, s.Healthy, strings.Join(s.Methods, ", "))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		printFailures(out, result)
		return nil
	})
}

func printFailures(out io.Writer, result loader.LoadResult) {
	if len(result.Failed) == 0 {
		return
	}
	names := append([]string(nil), result.Failed...)
	sort.Strings(names)

	fmt.Fprintf(out, "\n%d tool(s) failed to load:\n", len(names))
	for _, name := range names {
		fmt.Fprintf(out, "  %s: %v\n", name, result.Errors[name])
	}
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	var params map[string]any
	if err := json.Unmarshal([]byte(callParams), &params); err != nil {
		return fmt.Errorf("invalid --params: %w", err)
	}

	return withLoadedTools(cmd.Context(), func(d *daemon.Daemon, _ loader.LoadResult) error {
		result := d.GetExecutor().Execute(cmd.Context(), args[0], args[1], params, callTimeout)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("%s.%s failed: %s", args[0], args[1], result.Kind)
		}
		return nil
	})
}
