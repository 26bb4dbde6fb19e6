// Package mgmt serves the admin console over SSH. An exec request runs one
// command; a shell request gets an interactive console with line editing.
package mgmt

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/hongkiaong/lacpd/pkg/audit"
	"github.com/hongkiaong/lacpd/pkg/auth"
	"github.com/hongkiaong/lacpd/pkg/console"
	"github.com/hongkiaong/lacpd/pkg/util"
)

// Exit statuses of an exec request.
const (
	ExitOK    = 0
	ExitError = 1
)

// Server accepts SSH sessions for one console.
type Server struct {
	console *console.Console
	config  *ssh.ServerConfig
	log     *logrus.Entry
	checker *auth.Checker
	audit   audit.Logger
	device  string

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]bool
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a server that authenticates the given users by
// password.
func NewServer(c *console.Console, users map[string]string, hostKey ssh.Signer) (*Server, error) {
	if len(users) == 0 {
		return nil, util.NewValidationError("management plane needs at least one user")
	}
	if hostKey == nil {
		return nil, util.NewValidationError("management plane needs a host key")
	}
	creds := make(map[string]string, len(users))
	for u, p := range users {
		creds[u] = p
	}
	s := &Server{
		console: c,
		log:     util.WithField("component", "mgmt"),
		conns:   make(map[net.Conn]bool),
	}
	s.config = &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			want, ok := creds[meta.User()]
			if ok && subtle.ConstantTimeCompare([]byte(want), password) == 1 {
				return nil, nil
			}
			s.log.Warnf("rejected login for %q from %s", meta.User(), meta.RemoteAddr())
			return nil, fmt.Errorf("password rejected for %q", meta.User())
		},
	}
	s.config.AddHostKey(hostKey)
	return s, nil
}

// SetChecker restricts each user to the commands its role allows. Without a
// checker every authenticated user may run every command.
func (s *Server) SetChecker(c *auth.Checker) {
	s.checker = c
}

// SetAuditLogger records every command run on device to l.
func (s *Server) SetAuditLogger(l audit.Logger, device string) {
	s.audit = l
	s.device = device
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("management listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes every
// open session and returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Infof("management plane listening on %s", ln.Addr())

	stop := context.AfterFunc(ctx, s.shutdown)
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return err
			}
			s.log.Warnf("accept: %v", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = true
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for c := range s.conns {
		c.Close()
	}
}

func (s *Server) handleConn(nc net.Conn) {
	defer s.wg.Done()
	defer s.untrack(nc)
	defer nc.Close()

	conn, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		s.log.Debugf("handshake with %s: %v", nc.RemoteAddr(), err)
		return
	}
	defer conn.Close()

	sess := &session{user: conn.User(), remote: conn.RemoteAddr().String()}
	sess.log = s.log.WithFields(logrus.Fields{"user": sess.user, "remote": sess.remote})
	sess.log.Info("session opened")
	go ssh.DiscardRequests(reqs)

	var sessions sync.WaitGroup
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "only session channels are served")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			sess.log.Warnf("accepting channel: %v", err)
			continue
		}
		sessions.Add(1)
		go func() {
			defer sessions.Done()
			s.handleSession(sess, ch, requests)
		}()
	}
	sessions.Wait()
	sess.log.Info("session closed")
}

// session identifies the client of an SSH connection.
type session struct {
	user   string
	remote string
	log    *logrus.Entry
}

type execRequest struct {
	Command string
}

type exitStatus struct {
	Status uint32
}

func (s *Server) handleSession(sess *session, ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()
	for req := range requests {
		switch req.Type {
		case "exec":
			var r execRequest
			if err := ssh.Unmarshal(req.Payload, &r); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			status := s.runCommand(sess, ch, r.Command)
			ch.SendRequest("exit-status", false, ssh.Marshal(exitStatus{Status: status}))
			return
		case "shell":
			req.Reply(true, nil)
			go ssh.DiscardRequests(requests)
			s.runShell(sess, ch)
			ch.SendRequest("exit-status", false, ssh.Marshal(exitStatus{Status: ExitOK}))
			return
		case "pty-req", "env", "window-change":
			req.Reply(req.WantReply, nil)
		default:
			req.Reply(false, nil)
		}
	}
}

// runCommand executes one exec request. Errors go to stderr as
// "<kind>: <message>" so clients can recover the error class.
func (s *Server) runCommand(sess *session, ch ssh.Channel, command string) uint32 {
	sess.log.Infof("exec %q", command)
	if err := s.exec(sess, ch, command); err != nil {
		fmt.Fprintf(ch.Stderr(), "%s: %v\n", util.ErrorKind(err), err)
		return ExitError
	}
	return ExitOK
}

func (s *Server) runShell(sess *session, rw io.ReadWriter) {
	t := term.NewTerminal(rw, s.console.Prompt())
	t.AutoCompleteCallback = s.complete
	fmt.Fprintln(t, "Type 'help' for available commands.")
	for {
		line, err := t.ReadLine()
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		switch line {
		case "exit", "quit", "q":
			return
		}
		sess.log.Debugf("shell %q", line)
		if err := s.exec(sess, t, line); err != nil {
			fmt.Fprintf(t, "Error (%s): %v\n", util.ErrorKind(err), err)
		}
	}
}

// exec checks the user's permission, runs one line and audits the outcome.
func (s *Server) exec(sess *session, w io.Writer, line string) error {
	if line == "" {
		return nil
	}
	start := time.Now()
	var err error
	if s.checker != nil {
		err = s.checker.CheckCommand(sess.user, line)
	}
	if err == nil {
		err = s.console.Exec(w, line)
	} else {
		sess.log.Warnf("denied %q: %v", line, err)
	}
	if s.audit != nil && auth.ForCommand(line) != "" {
		event := audit.NewEvent(sess.user, s.device, line).
			WithRemote(sess.remote).
			WithResult(err).
			WithDuration(time.Since(start))
		if aerr := s.audit.Log(event); aerr != nil {
			sess.log.Errorf("audit: %v", aerr)
		}
	}
	return err
}

// complete expands the command word on tab.
func (s *Server) complete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' || strings.Contains(line[:pos], " ") {
		return "", 0, false
	}
	matches := s.console.Complete(line[:pos])
	if len(matches) != 1 {
		return "", 0, false
	}
	out := matches[0] + " " + line[pos:]
	return out, len(matches[0]) + 1, true
}
