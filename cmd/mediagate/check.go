package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration file, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := resolveAndLoad(*configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: listening on %s:%d, %d trusted key source(s), %d path prefix(es)\n",
				cfg.HTTP.Address, cfg.HTTP.Port, len(cfg.JWT.TrustedKeys), len(cfg.Opencast.PathPrefixes))
			return nil
		},
	}
}
