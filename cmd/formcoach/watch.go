package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		GroupID: gBasic,
		Short:   "Print session events as they happen",
		Long: `Print completed reps, resets, exercise changes and video feed endings as they happen.

Press Ctrl-C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Fail early with a useful error if the daemon is down.
			if _, _, err := getVersion(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for ev := range apiClient().SubscribeEvents(ctx) {
				cmd.Println(formatEvent(ev))
			}

			if ctx.Err() == nil {
				cmd.PrintErrln("event stream closed by daemon")
			}
			return nil
		},
	}
}
