package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mailreply/internal/app"
	"github.com/nhle/mailreply/internal/report"
)

func runCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process every unseen message once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.RunBatch(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), report.Batch(summary))
			return nil
		},
	}
}
