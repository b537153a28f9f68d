package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mailreply/internal/app"
	"github.com/nhle/mailreply/internal/report"
)

func historyCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show request usage and recently processed messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}

			st, err := app.OpenStorage(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			usage, err := st.Limiter.Usage(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, report.Usage(usage, st.Limiter.Limit()))

			outcomes, ok := st.Outcomes()
			if !ok {
				return nil
			}
			records, err := outcomes.RecentOutcomes(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, report.Outcomes(records))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of processed messages to show (sqlite storage only)")
	return cmd
}
