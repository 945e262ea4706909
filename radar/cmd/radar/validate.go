package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d channels, cache %s, %d notify targets)\n",
			cfgFile, len(cfg.Channels), cfg.Cache.Backend, len(cfg.Notify))
		return nil
	},
}
