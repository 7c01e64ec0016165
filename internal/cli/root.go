package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamtop/beamtop/internal/config"
	"github.com/beamtop/beamtop/internal/errors"
)

// Root command flags
var (
	cookieFlag     string
	cookieFileFlag string
	portFlag       int
	intervalFlag   time.Duration
	historyFlag    int
	msaccFlag      bool
	recordFlag     string
	debugFlag      bool
)

var rootCmd = &cobra.Command{
	Use:   "beamtop <node>",
	Short: "Live dashboard for a running Erlang/Elixir node",
	Long: `beamtop connects to a running Erlang VM as a hidden node and shows
scrolling graphs of its process counts, run queue, reductions, I/O and
memory use.

The target node must be distributed (started with -name or -sname) and
reachable. Authentication uses the Erlang cookie: pass it with --cookie,
point --cookie-file at a file, or let beamtop read ~/.erlang.cookie.

Examples:
  beamtop mynode@myhost
  beamtop --cookie secret mynode@myhost
  beamtop --interval 5s --record session.yaml mynode@db1.internal`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig(cmd, args[0])
		if err != nil {
			return err
		}
		return monitorCommand(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&cookieFlag, "cookie", "", "distribution cookie")
	rootCmd.Flags().StringVar(&cookieFileFlag, "cookie-file", "", "file to read the cookie from")
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "distribution port (skips the EPMD lookup)")
	rootCmd.Flags().DurationVar(&intervalFlag, "interval", 0, "sampling interval (e.g. 1s, 5s)")
	rootCmd.Flags().IntVar(&historyFlag, "history", 0, "points kept per graph (default sized to terminal)")
	rootCmd.Flags().BoolVar(&msaccFlag, "msacc", false, "collect per-scheduler utilization via microstate accounting")
	rootCmd.Flags().StringVar(&recordFlag, "record", "", "append each sample to this file as YAML")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging (same as BEAMTOP_DEBUG=1)")
}

// buildConfig layers flags over the global config file.
func buildConfig(cmd *cobra.Command, node string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("cookie") {
		cfg.Cookie = cookieFlag
	}
	if cmd.Flags().Changed("cookie-file") {
		cfg.CookieFile = cookieFileFlag
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = portFlag
	}
	if cmd.Flags().Changed("interval") {
		cfg.Interval = intervalFlag
	}
	if cmd.Flags().Changed("history") {
		cfg.History = historyFlag
	}
	if cmd.Flags().Changed("msacc") {
		cfg.MSAcc = msaccFlag
	}
	if cmd.Flags().Changed("record") {
		cfg.Record = recordFlag
	}

	if err := cfg.Finalize(node); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Execute runs the root command and prints structured errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var berr *errors.Error
		if stderrors.As(err, &berr) {
			fmt.Fprintln(os.Stderr, berr.Error())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
