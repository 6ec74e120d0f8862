package main

import (
	"fmt"
	"strconv"

	"netbus"
	"netbus/cmd/netbus/ui"
	"netbus/pkg/client"

	"github.com/spf13/cobra"
)

type connFlags struct {
	target  *string
	service *string
}

func (f *connFlags) dial() (*client.Client, error) {
	return client.Dial(*f.target, *f.service)
}

func devicesCmd(conn *connFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "devices",
		Aliases: []string{"dev"},
		Short:   "List network devices",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := conn.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			devs, err := c.Devices(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(devs))
			for _, d := range devs {
				rows = append(rows, []string{
					d.Name,
					d.Kind.String(),
					ui.State(d.Up),
					strconv.FormatUint(uint64(d.MTU), 10),
					ui.List(d.Addresses),
					ui.Muted(string(d.Path)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Table([]string{"NAME", "TYPE", "STATE", "MTU", "ADDRESSES", "PATH"}, rows))
			return nil
		},
	}
}

func connectionsCmd(conn *connFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn", "ls"},
		Short:   "List connections",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := conn.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			conns, err := c.Connections(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(conns))
			for _, cn := range conns {
				iface := cn.Interface
				if iface == "" {
					iface = ui.Muted("-")
				}
				rows = append(rows, []string{
					cn.ID,
					cn.Kind.String(),
					iface,
					cn.Method,
					ui.List(cn.Addresses),
					ui.Muted(cn.UUID),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Table([]string{"ID", "TYPE", "INTERFACE", "IPV4", "ADDRESSES", "UUID"}, rows))
			return nil
		},
	}
}

func addCmd(conn *connFlags) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := netbus.ParseConnectionKind(kind)
			if err != nil {
				return err
			}
			c, err := conn.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.AddConnection(cmd.Context(), args[0], k); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessMsg("Connection %s queued for creation (%s).", args[0], k))
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "plain", "Connection type: plain or wireless")
	return cmd
}

func removeCmd(conn *connFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a connection",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := conn.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.RemoveConnection(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessMsg("Connection %s queued for removal.", args[0]))
			return nil
		},
	}
}

func applyCmd(conn *connFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Persist the current connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := conn.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Apply(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessMsg("Apply requested."))
			return nil
		},
	}
}
