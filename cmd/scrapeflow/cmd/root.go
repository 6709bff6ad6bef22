package cmd

import (
	"errors"
	"log/slog"
	"os"
	"scrapeflow/lib/serviceutil"
	"scrapeflow/lib/telemetry"
	"time"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string

	tel telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "scrapeflow",
	Short: "scrapeflow is a CLI for inspecting captured traffic and running scrapes.",
	// errors are logged once by Execute
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)

		var err error
		tel, err = telemetry.SetupFromEnv(cmd.Context(), "scrapeflow")
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("no telemetry.json5 found, telemetry is disabled")
			return
		}
		if err != nil {
			slog.Warn("failed to setup telemetry", "err", err)
			return
		}
		telemetry.InstrumentPerfStats(cmd.Context(), time.Second*15)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		err := tel.Shutdown(cmd.Context())
		if err != nil {
			slog.Warn("failed to shutdown telemetry", "err", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs.")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "scrapeflow.json5", "The engine config, a scrapeflow.local.json5 next to it overrides it.")
}

func Execute() {
	ctx := serviceutil.SignalContext()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		serviceutil.Fatal("command failed", err)
	}
}
