package main

import (
	"fmt"
	"os"

	"netbus/cmd/netbus/ui"
	"netbus/internal/buildinfo"
	"netbus/internal/bus"
	"netbus/internal/interfaces"
	"netbus/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	if err := logging.Configure(logging.LevelWarn, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		debug   bool
		noColor bool
		target  = bus.System
		service = interfaces.ServiceName
	)

	root := &cobra.Command{
		Use:           "netbus",
		Short:         "Inspect and edit the network configuration published by netbusd",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			ui.ConfigureColor(noColor)
			return logging.Configure(level, logging.FormatText)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().StringVar(&target, "bus", target, "Bus to use: system, session, or a bus address")
	root.PersistentFlags().StringVar(&service, "service", service, "Bus name of the daemon")

	conn := &connFlags{target: &target, service: &service}
	root.AddCommand(devicesCmd(conn))
	root.AddCommand(connectionsCmd(conn))
	root.AddCommand(addCmd(conn))
	root.AddCommand(removeCmd(conn))
	root.AddCommand(applyCmd(conn))
	return root
}
