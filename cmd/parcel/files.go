package main

import (
	"fmt"
	"io"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"parcel/internal/hostapi"
)

func filesCmd() *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List files stored on the host",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := openBridge(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := b.ListFiles(cmd.Context(), page)
			if err != nil {
				return err
			}
			renderFiles(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page to show, starting at 1")
	return cmd
}

func renderFiles(w io.Writer, list *hostapi.FileList) {
	tb := table.NewWriter()
	tb.SetOutputMirror(w)
	tb.AppendHeader(table.Row{"ID", "Name", "Size", "Type", "URL"})
	for _, f := range list.Files {
		tb.AppendRow(table.Row{f.ID, f.Name, units.HumanSize(float64(f.Size)), f.Type, f.URL})
	}
	tb.Render()
	fmt.Fprintf(w, "page %d of %d, %d files\n", list.Page, list.Pages, list.Total)
}
