package main

import (
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"parcel/internal/model"
)

func historyCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past uploads, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := openBridge(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			recs, err := b.GetUploads(model.UploadStatus(status), limit)
			if err != nil {
				return err
			}
			stats, err := b.GetStats()
			if err != nil {
				return err
			}

			renderHistory(cmd.OutOrStdout(), recs)
			fmt.Fprintf(cmd.OutOrStdout(), "%d finished (%s), %d failed\n",
				stats.Totals.TasksFinished, units.HumanSize(float64(stats.Totals.TotalUploaded)), stats.Totals.TasksFailed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "only show uploads with this status")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of rows")
	return cmd
}

func renderHistory(w io.Writer, recs []*model.UploadRecord) {
	tb := table.NewWriter()
	tb.SetOutputMirror(w)
	tb.AppendHeader(table.Row{"ID", "File", "Size", "Mode", "Status", "When", "URL / Error"})
	for _, rec := range recs {
		detail := rec.URL
		if rec.Status != model.StatusComplete {
			detail = rec.Error
		}
		tb.AppendRow(table.Row{
			shortID(rec.ID),
			rec.FileName,
			units.HumanSize(float64(rec.Size)),
			rec.Mode,
			rec.Status,
			units.HumanDuration(time.Since(rec.CreatedAt)) + " ago",
			detail,
		})
	}
	tb.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
