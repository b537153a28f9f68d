package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/mailreply/internal/app"
	"github.com/nhle/mailreply/internal/report"
	appsync "github.com/nhle/mailreply/internal/sync"
)

func watchCmd(opts *globalOptions) *cobra.Command {
	var interval int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process unseen messages on an interval until interrupted",
		Long: `Runs a batch immediately and then every interval. A batch that is
running when the process is interrupted finishes first. Send SIGHUP to
start a batch right away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("interval") {
				cfg.Watch.IntervalSec = interval
			}

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			poller := a.NewPoller(appsync.WithResultHandler(func(r appsync.BatchResult) {
				if r.Error == nil && r.Summary.Total() > 0 {
					fmt.Fprintln(out, report.Batch(r.Summary))
				}
			}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go forwardHangup(ctx, poller)

			return poller.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&interval, "interval", 0, "Seconds between batches (overrides POLL_INTERVAL_SEC)")
	return cmd
}

// forwardHangup triggers a batch on every SIGHUP until ctx is done.
func forwardHangup(ctx context.Context, poller *appsync.Poller) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			poller.Trigger()
		}
	}
}
