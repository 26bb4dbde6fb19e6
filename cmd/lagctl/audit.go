package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hongkiaong/lacpd/pkg/audit"
	"github.com/hongkiaong/lacpd/pkg/cli"
)

var (
	auditUser     string
	auditDevice   string
	auditCommand  string
	auditFailures bool
	auditSince    time.Duration
	auditLimit    int
	auditJSON     bool
)

var auditCmd = &cobra.Command{
	Use:   "audit <file>",
	Short: "Query a lacpd command audit log",
	Long: `Query the JSON-lines audit log a lacpd daemon writes when audit.path is
configured.

Examples:
  lagctl audit /var/log/lacpd/audit.log
  lagctl audit audit.log --user noc --failures
  lagctl audit audit.log --command "lag " --since 24h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			User:        auditUser,
			Device:      auditDevice,
			Command:     auditCommand,
			FailureOnly: auditFailures,
			Limit:       auditLimit,
		}
		if auditSince > 0 {
			filter.StartTime = time.Now().Add(-auditSince)
		}
		events, err := audit.ReadFile(args[0], filter)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if auditJSON {
			return writeJSON(w, events)
		}
		t := cli.NewTableTo(w, "TIME", "USER", "DEVICE", "COMMAND", "RESULT")
		for _, e := range events {
			result := cli.Green("ok")
			if !e.Success {
				result = cli.Red(cli.OrDash(e.Kind))
			}
			t.Row(e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.User, e.Device, e.Command, result)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditUser, "user", "", "Only commands run by this user")
	auditCmd.Flags().StringVar(&auditDevice, "device", "", "Only commands run on this switch")
	auditCmd.Flags().StringVar(&auditCommand, "command", "", "Only commands starting with this text")
	auditCmd.Flags().BoolVar(&auditFailures, "failures", false, "Only failed commands")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only commands newer than this")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 0, "Maximum number of entries")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "JSON output")
}
