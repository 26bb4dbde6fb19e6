package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hongkiaong/lacpd/pkg/cli"
	"github.com/hongkiaong/lacpd/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent settings",
	Long: `Manage persistent settings stored in ~/.lacpd/settings.json.

Settings provide defaults for flags:
  - redis_addr:  STATE_DB address (--redis)
  - ssh_user:    SSH login (--user)
  - daemon_addr: lacpd management address for exec
  - log_level:   lacpd log level (--log-level)

Examples:
  lagctl settings show
  lagctl settings set daemon_addr sw1:2222
  lagctl settings clear`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Settings file: %s\n\n", settings.DefaultSettingsPath())

		t := cli.NewTableTo(w, "SETTING", "VALUE")
		for _, key := range settings.Keys() {
			value, _ := s.Get(key)
			if value == "" {
				value = "(not set)"
			}
			t.Row(key, value)
		}
		t.Flush()
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Set a setting value",
	Long:  "Set a persistent setting value. Valid settings: " + strings.Join(settings.Keys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			s = &settings.Settings{}
		}
		if err := s.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s set to: %s\n", args[0], args[1])
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <setting>",
	Short: "Get a setting value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		value, err := s.Get(args[0])
		if err != nil {
			return err
		}
		if value == "" {
			value = "(not set)"
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := &settings.Settings{}
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All settings cleared.")
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), settings.DefaultSettingsPath())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsClearCmd)
	settingsCmd.AddCommand(settingsPathCmd)
}
