// lagctl - operator CLI for lacpd
//
// lagctl runs admin commands on a lacpd daemon over SSH and reads the LAG
// and interface state it publishes to STATE_DB.
//
// Examples:
//
//	lagctl exec sw1:2222 -- lag create 1 mode active
//	lagctl exec sw1:2222 -- show lag 1
//	lagctl show lag                            # from the configured redis
//	lagctl --ssh-host sw1 show interfaces      # redis on the switch's loopback
//	lagctl audit /var/log/lacpd/audit.log --failures
//	lagctl settings set daemon_addr sw1:2222
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hongkiaong/lacpd/pkg/cli"
	"github.com/hongkiaong/lacpd/pkg/settings"
	"github.com/hongkiaong/lacpd/pkg/util"
	"github.com/hongkiaong/lacpd/pkg/version"
)

var (
	redisAddr  string
	sshHost    string
	sshUser    string
	jsonOutput bool
	verbose    bool

	userSettings *settings.Settings
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.Red("Error:"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "lagctl",
	Short:             "Operate lacpd link aggregation daemons",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		// Quiet by default, verbose on -v
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		if redisAddr == "" {
			redisAddr = userSettings.GetRedisAddr()
		}
		if sshUser == "" {
			sshUser = userSettings.GetSSHUser()
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lagctl %s\n", version.Info())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address of STATE_DB")
	rootCmd.PersistentFlags().StringVar(&sshHost, "ssh-host", "", "Reach redis through an SSH tunnel to this switch")
	rootCmd.PersistentFlags().StringVarP(&sshUser, "user", "u", "", "SSH user for exec and tunnels")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "ops", Title: "Operations:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)
	for _, cmd := range []*cobra.Command{execCmd, showCmd, auditCmd} {
		cmd.GroupID = "ops"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}
