package mgmt

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/hongkiaong/lacpd/pkg/audit"
	"github.com/hongkiaong/lacpd/pkg/auth"
	"github.com/hongkiaong/lacpd/pkg/cli"
	"github.com/hongkiaong/lacpd/pkg/console"
	"github.com/hongkiaong/lacpd/pkg/device"
	"github.com/hongkiaong/lacpd/pkg/portmon"
)

func TestMain(m *testing.M) {
	cli.SetColor(false)
	os.Exit(m.Run())
}

// startServer serves a two-port switch on a loopback port and returns its
// address and device.
func startServer(t *testing.T) (string, *device.Device) {
	return startServerWith(t, nil)
}

func startServerWith(t *testing.T, configure func(*Server)) (string, *device.Device) {
	t.Helper()
	d, err := device.New(device.Config{
		Name: "sw1",
		MAC:  net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		Ports: []portmon.Port{
			{Name: "1", AdminUp: true},
			{Name: "2", AdminUp: true},
		},
	})
	require.NoError(t, err)

	key, err := GenerateHostKey()
	require.NoError(t, err)
	srv, err := NewServer(console.New(d), map[string]string{"admin": "secret", "noc": "look"}, key)
	require.NoError(t, err)
	if configure != nil {
		configure(srv)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ln.Addr().String(), d
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestExec(t *testing.T) {
	addr, d := startServer(t)
	ctx := testContext(t)

	var out bytes.Buffer
	require.NoError(t, Exec(ctx, addr, "admin", "secret", "lag create 1 mode active", &out))
	assert.Equal(t, "created lag1 (active, key 1)\n", out.String())

	require.NoError(t, Exec(ctx, addr, "admin", "secret", "lag add-member 1 2", &bytes.Buffer{}))
	pc, err := d.PortChannel("lag1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, pc.MemberNames())

	out.Reset()
	require.NoError(t, Exec(ctx, addr, "admin", "secret", "show lag", &out))
	assert.Contains(t, out.String(), "lag1")
}

func TestExecReportsErrorKind(t *testing.T) {
	addr, _ := startServer(t)
	ctx := testContext(t)

	err := Exec(ctx, addr, "admin", "secret", "lag delete 7", &bytes.Buffer{})
	var re *RemoteError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, ExitError, re.Status)
	assert.Equal(t, "not-found", re.Kind)
	assert.Contains(t, re.Message, "lag lag7 not found")
}

func TestExecDeniedByRole(t *testing.T) {
	addr, d := startServerWith(t, func(s *Server) {
		s.SetChecker(auth.NewChecker(map[string]auth.Role{
			"admin": auth.RoleAdmin,
			"noc":   auth.RoleViewer,
		}))
	})
	ctx := testContext(t)

	err := Exec(ctx, addr, "noc", "look", "lag create 1 mode active", &bytes.Buffer{})
	var re *RemoteError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, "permission-denied", re.Kind)
	_, err = d.PortChannel("lag1")
	assert.Error(t, err, "denied command must not run")

	require.NoError(t, Exec(ctx, addr, "noc", "look", "show lag", &bytes.Buffer{}))
	require.NoError(t, Exec(ctx, addr, "admin", "secret", "lag create 1 mode active", &bytes.Buffer{}))
}

func TestExecAudited(t *testing.T) {
	logger, err := audit.NewFileLogger(filepath.Join(t.TempDir(), "audit.log"), audit.RotationConfig{})
	require.NoError(t, err)
	defer logger.Close()

	addr, _ := startServerWith(t, func(s *Server) { s.SetAuditLogger(logger, "sw1") })
	ctx := testContext(t)

	require.NoError(t, Exec(ctx, addr, "admin", "secret", "vlan create 10", &bytes.Buffer{}))
	require.Error(t, Exec(ctx, addr, "admin", "secret", "vlan create 10", &bytes.Buffer{}))
	require.NoError(t, Exec(ctx, addr, "admin", "secret", "help", &bytes.Buffer{}))

	events, err := logger.Query(audit.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 2, "help is not audited")
	assert.Equal(t, "admin", events[0].User)
	assert.Equal(t, "sw1", events[0].Device)
	assert.Equal(t, "vlan create 10", events[0].Command)
	assert.True(t, events[0].Success)
	assert.NotEmpty(t, events[0].Remote)
	assert.False(t, events[1].Success)
	assert.Equal(t, "duplicate-id", events[1].Kind)
}

func TestExecRejectsBadPassword(t *testing.T) {
	addr, _ := startServer(t)
	ctx := testContext(t)

	err := Exec(ctx, addr, "admin", "wrong", "show lag", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake")

	err = Exec(ctx, addr, "nobody", "secret", "show lag", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestShell(t *testing.T) {
	addr, d := startServer(t)

	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "admin",
		Auth:            []ssh.AuthMethod{ssh.Password("secret")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	require.NoError(t, err)
	defer client.Close()

	session, err := client.NewSession()
	require.NoError(t, err)
	defer session.Close()

	var out bytes.Buffer
	session.Stdin = strings.NewReader("vlan create 10\rvlan create 10\rshow vlan\rexit\r")
	session.Stdout = &out
	require.NoError(t, session.RequestPty("xterm", 40, 120, ssh.TerminalModes{}))
	require.NoError(t, session.Shell())
	require.NoError(t, session.Wait())

	text := out.String()
	assert.Contains(t, text, "sw1> ")
	assert.Contains(t, text, "Error (duplicate-id)")
	assert.Contains(t, text, "Vlan10")

	_, err = d.VLAN(10)
	assert.NoError(t, err)
}

func TestComplete(t *testing.T) {
	s := &Server{console: console.New(nil)}

	line, pos, ok := s.complete("sh", 2, '\t')
	require.True(t, ok)
	assert.Equal(t, "show ", line)
	assert.Equal(t, 5, pos)

	_, _, ok = s.complete("show l", 6, '\t')
	assert.False(t, ok, "only the command word completes")
	_, _, ok = s.complete("sh", 2, 'x')
	assert.False(t, ok)
}

func TestNewServerValidates(t *testing.T) {
	key, err := GenerateHostKey()
	require.NoError(t, err)

	_, err = NewServer(console.New(nil), nil, key)
	assert.Error(t, err)
	_, err = NewServer(console.New(nil), map[string]string{"a": "b"}, nil)
	assert.Error(t, err)
}

func TestLoadHostKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "host_ed25519")

	first, err := LoadHostKey(path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadHostKey(path)
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey().Marshal(), second.PublicKey().Marshal())

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	_, err = LoadHostKey(path)
	assert.Error(t, err)
}
