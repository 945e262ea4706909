package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/starradar/starradar/radar/internal/config"
	"github.com/starradar/starradar/radar/internal/notify"
	"github.com/starradar/starradar/radar/internal/pipeline"
	"github.com/starradar/starradar/radar/internal/search"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "radar",
	Short: "radar - trending GitHub repository digest",
	Long: `radar searches GitHub for the configured channels, ranks the results by
relevance, star growth and quality, and delivers a daily digest.

Examples:
  radar run -c config.yaml          # one pass, then exit
  radar watch -c config.yaml        # repeat on schedule.interval, serve the API
  radar validate -c config.yaml     # check the config and exit`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

		// A missing default .env is normal; an explicit one must exist.
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
		} else {
			_ = godotenv.Load()
		}
		slog.Info("radar starting", "command", cmd.CommandPath(), "config", cfgFile)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file with secrets (default: ./.env when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd, watchCmd, validateCmd)
}

// loadConfig reads cfgFile and logs a one-line summary.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	slog.Info("config loaded",
		"path", cfgFile,
		"channels", len(cfg.Channels),
		"cache", cfg.Cache.Backend,
		"notify_targets", len(cfg.Notify),
	)
	return cfg, nil
}

// newRunner wires the network collaborators for cfg.
func newRunner(cfg *config.Config, logger *slog.Logger) (*pipeline.Runner, error) {
	client, err := search.New(cfg.GitHub, logger)
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, pipeline.Deps{
		Source:   client,
		Feeds:    search.NewFeedReader(cfg.GitHub.Timeout),
		Readmes:  client,
		Notifier: notify.New(cfg.Notify, logger),
	}, logger)
}
