package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"netbus/config"
	"netbus/daemon"
	"netbus/internal/buildinfo"
	"netbus/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	if err := logging.Configure(logging.LevelInfo, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		busTarget  string
		statePath  string
		noWatch    bool
		debug      bool
		cfg        config.Config
	)

	cmd := &cobra.Command{
		Use:          "netbusd",
		Short:        "Publish network devices and connections on the bus",
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("bus") {
				loaded.Bus = busTarget
			}
			if cmd.Flags().Changed("state") {
				loaded.StatePath = statePath
			}
			if noWatch {
				loaded.WatchLinks = false
			}
			if debug {
				loaded.Log.Level = logging.LevelDebug
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			cfg = loaded
			return logging.Configure(cfg.Log.Level, cfg.Log.Format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return daemon.Run(ctx, cfg)
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.Path()+")")
	cmd.Flags().StringVar(&busTarget, "bus", config.BusSystem, "Bus to publish on: system, session, or a bus address")
	cmd.Flags().StringVar(&statePath, "state", "", "Connection profile database")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not republish devices on link changes")
	return cmd
}
