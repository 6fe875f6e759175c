package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parcel/internal/app"
	"parcel/internal/config"
	"parcel/internal/logger"
)

var (
	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "parcel",
	Short:         "Upload files to a file host and keep a local history",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		overlayFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		log = logger.New(cfg.LogLevel, cfg.Dev)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("server", "", "file host URL (PARCEL_SERVER)")
	f.String("token", "", "file host API token (PARCEL_TOKEN)")
	f.String("data-dir", "", "directory holding the upload history (PARCEL_DATA_DIR)")
	f.String("log-level", "", "debug, info, warn or error (PARCEL_LOG_LEVEL)")
	f.Bool("dev", false, "development logging and request dumps (PARCEL_DEV)")

	rootCmd.Version = version
	rootCmd.AddCommand(serveCmd(), uploadCmd(), historyCmd(), filesCmd(), watchCmd())
}

// overlayFlags lets explicitly set flags win over the environment.
func overlayFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("server") {
		v, _ := flags.GetString("server")
		c.Server = strings.TrimRight(v, "/")
	}
	if flags.Changed("token") {
		c.Token, _ = flags.GetString("token")
	}
	if flags.Changed("data-dir") {
		c.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-level") {
		v, _ := flags.GetString("log-level")
		c.LogLevel = strings.ToLower(v)
	}
	if flags.Changed("dev") {
		c.Dev, _ = flags.GetBool("dev")
	}
}

func openBridge(ctx context.Context) (*app.Bridge, func(), error) {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return app.NewBridge(a), func() { _ = a.Close() }, nil
}
