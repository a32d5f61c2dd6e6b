package listener

import (
	"context"
	"io"
	"log/slog"
)

type ConnectionManager struct {
	console *Console
}

func NewConnectionManager(console *Console) *ConnectionManager {
	return &ConnectionManager{
		console: console,
	}
}

func (m *ConnectionManager) AcceptConnection(ctx context.Context, conn io.ReadWriter) {
	if err := m.console.Run(ctx, conn); err != nil {
		slog.WarnContext(ctx, "console session", "error", err)
	}
}
