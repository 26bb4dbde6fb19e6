// lacpd - link aggregation control plane for one switch
//
// lacpd runs LACP on the switch's ports, bundles them into LAGs, switches
// VLAN traffic over them, publishes state to redis, and serves the admin
// console over SSH.
//
// Examples:
//
//	lacpd run --config /etc/lacpd/sw1.yaml
//	lacpd run --config sw1.yaml --redis 127.0.0.1:6379 --listen :2222
//	lacpd validate sw1.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hongkiaong/lacpd/pkg/settings"
	"github.com/hongkiaong/lacpd/pkg/util"
	"github.com/hongkiaong/lacpd/pkg/version"
)

var (
	logLevel string
	logJSON  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "lacpd",
	Short:             "Link aggregation control plane",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		if level == "" {
			s, err := settings.Load()
			if err != nil {
				util.Warnf("Could not load settings: %v", err)
				s = &settings.Settings{}
			}
			level = s.GetLogLevel()
		}
		if err := util.SetLogLevel(level); err != nil {
			return fmt.Errorf("log level %q: %w", level, err)
		}
		if logJSON {
			util.SetJSONFormat()
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lacpd %s\n", version.Info())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log in JSON")

	rootCmd.AddCommand(runCmd, validateCmd, versionCmd)
}
