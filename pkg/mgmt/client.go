package mgmt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"
)

// RemoteError is a command that ran on the daemon and failed.
type RemoteError struct {
	Status int
	// Kind is the error class reported by the daemon, e.g. "not-found".
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("remote command failed (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Exec runs one console command on the daemon at addr and copies its output
// to stdout.
func Exec(ctx context.Context, addr, user, password, command string, stdout io.Writer) error {
	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
		},
		// Daemons generate an ephemeral host key unless one is configured.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { nc.Close() })
	defer stop()

	conn, chans, reqs, err := ssh.NewClientConn(nc, addr, config)
	if err != nil {
		nc.Close()
		return fmt.Errorf("SSH handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(conn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stdout = stdout
	session.Stderr = &stderr

	err = session.Run(command)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return parseRemoteError(exitErr.ExitStatus(), stderr.String())
	}
	if err != nil {
		return fmt.Errorf("running %q: %w", command, err)
	}
	return nil
}

// parseRemoteError splits the "<kind>: <message>" line the server writes.
func parseRemoteError(status int, stderr string) *RemoteError {
	msg := strings.TrimSpace(stderr)
	kind, rest, ok := strings.Cut(msg, ": ")
	if !ok || strings.ContainsAny(kind, " \n") {
		return &RemoteError{Status: status, Message: msg}
	}
	return &RemoteError{Status: status, Kind: kind, Message: rest}
}
