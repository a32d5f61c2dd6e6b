package listener

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// SshListener serves the admin console over ssh. Authentication is
// left to the host key plus network placement, the same trust model as
// the telnet listener; the transport just adds encryption for consoles
// reachable across machines.
type SshListener struct {
	port    uint16
	cm      *ConnectionManager
	hostKey ssh.Signer
}

func NewSshListener(port uint16, cm *ConnectionManager, hostKey ssh.Signer) *SshListener {
	return &SshListener{
		port:    port,
		cm:      cm,
		hostKey: hostKey,
	}
}

func (l *SshListener) Start(ctx context.Context) error {
	config := &ssh.ServerConfig{
		NoClientAuth:  true,
		ServerVersion: "SSH-2.0-shopd",
	}
	config.AddHostKey(l.hostKey)

	netLn, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("listening for admin console on port %d: %w", l.port, err)
	}

	slog.InfoContext(ctx, "admin console listening", "transport", "ssh", "port", l.port)

	sessCtx, cancelSessions := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		netLn.Close()
	}()

	for {
		conn, err := netLn.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				cancelSessions()
				wg.Wait()
				return nil
			default:
			}
			slog.ErrorContext(ctx, "accepting console connection", "transport", "ssh", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.serveConn(sessCtx, conn, config)
		}()
	}
}

func (l *SshListener) serveConn(ctx context.Context, conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		slog.ErrorContext(ctx, "console ssh handshake failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	defer sshConn.Close()

	slog.InfoContext(ctx, "admin console session opened", "transport", "ssh", "remote", conn.RemoteAddr())

	// A shutdown closes the ssh connection, which ends the channel
	// range below and lets serveConn return.
	go func() {
		<-ctx.Done()
		sshConn.Close()
	}()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "only console sessions are served")
			continue
		}

		ch, requests, err := newChan.Accept()
		if err != nil {
			slog.ErrorContext(ctx, "accepting console channel", "error", err)
			continue
		}

		// The console is line-oriented, so refuse the pty (keeping the
		// client's local echo) and wait for the shell request before
		// reading; clients don't forward input until the shell reply.
		shellReady := make(chan struct{})
		go func(in <-chan *ssh.Request) {
			for req := range in {
				switch req.Type {
				case "pty-req":
					req.Reply(false, nil)
				case "shell":
					req.Reply(true, nil)
					close(shellReady)
				default:
					req.Reply(false, nil)
				}
			}
		}(requests)

		select {
		case <-shellReady:
		case <-ctx.Done():
			ch.Close()
			continue
		}

		l.cm.AcceptConnection(ctx, consoleLineStream(ch))
		ch.Close()
		slog.InfoContext(ctx, "admin console session closed", "transport", "ssh", "remote", conn.RemoteAddr())
	}
}
