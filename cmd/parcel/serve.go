package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"parcel/internal/app"
	"parcel/internal/logger"
)

func serveCmd() *cobra.Command {
	var port int
	var host, apiKey, root string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("api-key") {
				cfg.APIKey = apiKey
			}
			if cmd.Flags().Changed("upload-root") {
				cfg.UploadRoot = root
			}

			if err := cfg.CheckExposure(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}

			logger.PrintBanner(cmd.OutOrStdout(), logger.StartupInfo{
				Version:  version,
				Addr:     a.Addr(),
				Server:   cfg.Server,
				DataDir:  cfg.DataDir,
				LogLevel: cfg.LogLevel,
			})
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "control API listen address; other than loopback needs --api-key (PARCEL_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "control API port (PARCEL_PORT)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "require this X-API-Key on the control API (PARCEL_API_KEY)")
	cmd.Flags().StringVar(&root, "upload-root", "", "only accept files below this directory (PARCEL_UPLOAD_ROOT)")
	return cmd
}
