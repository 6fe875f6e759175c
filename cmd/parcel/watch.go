package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"parcel/internal/event"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print events pushed by the host until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, closeFn, err := openBridge(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			return b.Watch(ctx, func(ev event.RemoteEvent) {
				fmt.Fprintf(out, "%s %s\n", ev.Type, ev.Data)
			})
		},
	}
}
