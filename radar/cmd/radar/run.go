package main

import (
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// errRunFailed makes the process exit 1 after a completed but failed run.
var errRunFailed = errors.New("run finished with errors")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pass and exit",
	Long: `Retrieve, rank, write the report and deliver the digest once.
Exits non-zero when any delivery target or output write fails; the HTML
report is written before delivery either way.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		logger := slog.Default()
		runner, err := newRunner(cfg, logger)
		if err != nil {
			return err
		}
		out, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		if out.Failed() {
			return errRunFailed
		}
		return nil
	},
}
