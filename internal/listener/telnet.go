package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"

	"github.com/iammegalith/telnet"
	"github.com/pixil98/go-log"
	"github.com/sirupsen/logrus"
)

// TelnetListener serves the admin console over plain telnet. It is
// meant for a trusted operator network; anyone who can reach the port
// gets a console.
type TelnetListener struct {
	port uint16
	cm   *ConnectionManager
}

func NewTelnetListener(port uint16, cm *ConnectionManager) *TelnetListener {
	return &TelnetListener{
		port: port,
		cm:   cm,
	}
}

func (l *TelnetListener) Start(ctx context.Context) error {
	// Console sessions share a context detached from Start's so an
	// accept failure does not tear down sessions already in progress.
	sessCtx, cancelSessions := context.WithCancel(context.Background())

	handler := &consoleTelnetHandler{
		accept:         l.cm.AcceptConnection,
		logger:         log.GetLogger(ctx).WithField("listener", "telnet"),
		sessCtx:        sessCtx,
		cancelSessions: cancelSessions,
	}

	svr := telnet.NewServer(fmt.Sprintf(":%d", l.port), handler)

	// done signals that Start is returning, success or failure
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			svr.Stop()
			handler.Stop()
		case <-done:
			// ListenAndServe already returned, nothing left to stop
		}
	}()

	err := svr.ListenAndServe()
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("admin console port %d is already in use", l.port)
		}
		return fmt.Errorf("serving admin console on port %d: %w", l.port, err)
	}

	return nil
}

// consoleTelnetHandler runs one admin console session per telnet
// connection and tracks them for shutdown.
type consoleTelnetHandler struct {
	wg             sync.WaitGroup
	accept         func(context.Context, io.ReadWriter)
	logger         logrus.FieldLogger
	sessCtx        context.Context
	cancelSessions context.CancelFunc
}

func (h *consoleTelnetHandler) HandleTelnet(conn *telnet.Connection) {
	h.wg.Add(1)
	defer h.wg.Done()

	logger := h.logger.WithField("remote", conn.RemoteAddr().String())
	logger.Info("admin console session opened")

	defer func() {
		if err := conn.Close(); err != nil {
			logger.Errorf("closing console connection: %s", err)
		}
		logger.Info("admin console session closed")
	}()

	h.accept(log.SetLogger(h.sessCtx, logger), conn)
}

func (h *consoleTelnetHandler) Stop() {
	h.cancelSessions()
	h.wg.Wait()
}
