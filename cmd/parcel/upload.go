package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"parcel/internal/event"
	"parcel/internal/model"
	"parcel/internal/utils"
)

func uploadCmd() *cobra.Command {
	var (
		buffered bool
		streamed bool
		name     string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name != "" {
				if len(args) > 1 {
					return fmt.Errorf("--name needs exactly one file")
				}
				if !utils.IsSafeFilename(name) {
					return fmt.Errorf("invalid --name %q", name)
				}
			}
			var mode model.UploadMode
			switch {
			case buffered && streamed:
				return fmt.Errorf("--buffered and --streamed are exclusive")
			case buffered:
				mode = model.ModeBuffered
			case streamed:
				mode = model.ModeStreamed
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, closeFn, err := openBridge(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			events, unsubscribe := b.Subscribe()
			out := cmd.OutOrStdout()
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				printProgress(out, events)
			}()

			recs, err := b.Upload(ctx, args, name, mode)
			unsubscribe()
			wg.Wait()

			for _, rec := range recs {
				if rec != nil && rec.Status == model.StatusComplete {
					fmt.Fprintf(out, "%s  %s\n", rec.FileName, rec.URL)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&buffered, "buffered", false, "build the whole request in memory before sending")
	cmd.Flags().BoolVar(&streamed, "streamed", false, "stream the file even when it is small")
	cmd.Flags().StringVarP(&name, "name", "n", "", "file name announced to the host")
	return cmd
}

// printProgress redraws one status line per upload until events closes.
func printProgress(w io.Writer, events <-chan event.Event) {
	names := map[string]string{}
	for ev := range events {
		switch data := ev.Data.(type) {
		case event.LifecycleEvent:
			rec, ok := data.Data.(*model.UploadRecord)
			if !ok {
				continue
			}
			names[data.ID] = rec.FileName
			switch data.Type {
			case event.UploadCompleted:
				fmt.Fprintf(w, "\r%s\n", progressLine(rec.FileName, rec.Size, rec.Size, 0))
			case event.UploadError, event.UploadCancelled:
				fmt.Fprintf(w, "\r%s: %s\n", rec.FileName, rec.Error)
			}
		case event.ProgressEvent:
			fmt.Fprintf(w, "\r%s", progressLine(names[data.ID], data.Sent, data.Size, data.Speed))
		}
	}
}

func progressLine(name string, sent, size, speed int64) string {
	pct := 100.0
	if size > 0 {
		pct = float64(sent) / float64(size) * 100
	}
	line := fmt.Sprintf("%s  %s / %s  %5.1f%%", name, units.HumanSize(float64(sent)), units.HumanSize(float64(size)), pct)
	if speed > 0 && sent < size {
		eta := time.Duration(event.CalculateETA(size-sent, speed)) * time.Second
		line += fmt.Sprintf("  %s/s  %s left", units.HumanSize(float64(speed)), eta)
	}
	return line
}
