package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hongkiaong/lacpd/pkg/console"
	"github.com/hongkiaong/lacpd/pkg/statedb"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show published state from STATE_DB",
	Long: `Show LAG and interface state published by lacpd.

Examples:
  lagctl show lag
  lagctl show lag 1 --json
  lagctl --ssh-host sw1 show interfaces`,
}

var showLAGCmd = &cobra.Command{
	Use:     "lag [<id>]",
	Aliases: []string{"lags"},
	Short:   "Show LAGs, or one LAG with its member LACP state",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReader(cmd.Context(), func(ctx context.Context, r *statedb.Reader) error {
			w := cmd.OutOrStdout()
			if len(args) == 1 {
				pc, err := r.LAG(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(w, pc)
				}
				console.RenderLAG(w, pc)
				return nil
			}
			lags, err := r.LAGs(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(w, lags)
			}
			console.RenderLAGSummary(w, lags)
			return nil
		})
	},
}

var showInterfacesCmd = &cobra.Command{
	Use:     "interfaces",
	Aliases: []string{"interface"},
	Short:   "Show ports",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReader(cmd.Context(), func(ctx context.Context, r *statedb.Reader) error {
			ifaces, err := r.Interfaces(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), ifaces)
			}
			console.RenderInterfaces(cmd.OutOrStdout(), ifaces)
			return nil
		})
	},
}

func init() {
	showCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")
	showCmd.AddCommand(showLAGCmd, showInterfacesCmd)
}

// withReader connects to STATE_DB, through an SSH tunnel when --ssh-host is
// set, and runs fn.
func withReader(ctx context.Context, fn func(context.Context, *statedb.Reader) error) error {
	addr := redisAddr
	if sshHost != "" {
		pass, err := password(fmt.Sprintf("%s@%s's password: ", sshUser, sshHost))
		if err != nil {
			return err
		}
		tunnel, err := statedb.NewSSHTunnel(ctx, sshHost, sshUser, pass, "")
		if err != nil {
			return err
		}
		defer tunnel.Close()
		addr = tunnel.LocalAddr()
	}

	r := statedb.NewReader(addr)
	if err := r.Connect(ctx); err != nil {
		return err
	}
	defer r.Close()
	return fn(ctx, r)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
