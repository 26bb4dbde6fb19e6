package statedb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/hongkiaong/lacpd/pkg/util"
)

// DefaultRedisAddr is where redis listens on the switch itself.
const DefaultRedisAddr = "127.0.0.1:6379"

// SSHTunnel forwards a local TCP port to an address inside an SSH host, for
// switches whose redis only listens on loopback.
type SSHTunnel struct {
	remote   string
	client   *ssh.Client
	listener net.Listener
	log      *logrus.Entry

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSSHTunnel logs in to host (port 22 unless given) and listens on a
// random loopback port. Each connection to it is forwarded to remote
// (DefaultRedisAddr when empty) inside the host. ctx bounds the SSH dial
// and handshake only.
func NewSSHTunnel(ctx context.Context, host, user, pass, remote string) (*SSHTunnel, error) {
	if remote == "" {
		remote = DefaultRedisAddr
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "22")
	}
	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(pass),
		},
		// Switches regenerate host keys when reinstalled.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", host, err)
	}
	stop := context.AfterFunc(ctx, func() { nc.Close() })
	conn, chans, reqs, err := ssh.NewClientConn(nc, host, config)
	if !stop() || err != nil {
		nc.Close()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("SSH handshake with %s: %w", host, err)
	}
	client := ssh.NewClient(conn, chans, reqs)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("local listen: %w", err)
	}

	t := &SSHTunnel{
		remote:   remote,
		client:   client,
		listener: listener,
		log:      util.WithField("tunnel", host).WithField("local", listener.Addr().String()),
	}
	t.wg.Add(1)
	go t.acceptLoop()
	t.log.Debugf("forwarding to %s", remote)
	return t, nil
}

// LocalAddr returns the loopback address that forwards to the remote
// address.
func (t *SSHTunnel) LocalAddr() string {
	return t.listener.Addr().String()
}

// Close stops accepting, waits for open forwards to end and closes the SSH
// connection. It is safe to call more than once.
func (t *SSHTunnel) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.listener.Close()
		// Closing the client ends the remote halves, which unblocks forwards.
		err = t.client.Close()
		t.wg.Wait()
	})
	return err
}

func (t *SSHTunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.log.Warnf("accept: %v", err)
			}
			return
		}
		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *SSHTunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.client.Dial("tcp", t.remote)
	if err != nil {
		t.log.Warnf("dial %s: %v", t.remote, err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}
