package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hongkiaong/lacpd/pkg/mgmt"
)

// PasswordEnv supplies the SSH password without a prompt.
const PasswordEnv = "LACPD_PASSWORD"

var execTimeout time.Duration

var execCmd = &cobra.Command{
	Use:   "exec [<addr>] -- <command...>",
	Short: "Run an admin command on a daemon",
	Long: `Run one admin console command on the lacpd daemon at <addr>.

<addr> defaults to the daemon_addr setting. The password is read from
$LACPD_PASSWORD or prompted for.

Examples:
  lagctl exec sw1:2222 -- lag create 1 mode active rate fast
  lagctl exec sw1:2222 -- vlan tag lag1 800,900
  lagctl exec -- show lag`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, command, err := splitExecArgs(cmd.ArgsLenAtDash(), args, userSettings.DaemonAddr)
		if err != nil {
			return err
		}
		password, err := password(fmt.Sprintf("%s@%s's password: ", sshUser, addr))
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), execTimeout)
		defer cancel()
		return mgmt.Exec(ctx, addr, sshUser, password, command, cmd.OutOrStdout())
	},
}

func init() {
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 30*time.Second, "Command timeout")
}

// splitExecArgs separates the daemon address from the command words.
// dash is the index of "--" in args, or -1.
func splitExecArgs(dash int, args []string, defaultAddr string) (string, string, error) {
	var addr string
	var words []string
	switch {
	case dash == 0:
		addr, words = defaultAddr, args
	case dash == 1:
		addr, words = args[0], args[1:]
	case dash < 0 && len(args) > 1:
		addr, words = args[0], args[1:]
	default:
		return "", "", fmt.Errorf("usage: lagctl exec [<addr>] -- <command...>")
	}
	if addr == "" {
		return "", "", fmt.Errorf("no daemon address (give one or run: lagctl settings set daemon_addr <host:port>)")
	}
	if len(words) == 0 {
		return "", "", fmt.Errorf("no command given")
	}
	return addr, strings.Join(words, " "), nil
}

// password returns $LACPD_PASSWORD, or prompts on the terminal.
func password(prompt string) (string, error) {
	if p, ok := os.LookupEnv(PasswordEnv); ok {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no password: set %s or run from a terminal", PasswordEnv)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
