package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/foreman/pkg/ports"
)

// SocketNotifier posts notifications as JSON to an HTTP endpoint listening on
// a unix domain socket, the convention desktop notification bridges use.
// Delivery is best effort; the engine logs and moves on when it fails.
type SocketNotifier struct {
	client *http.Client
	path   string
	logger *slog.Logger
}

// NewSocketNotifier creates a notifier targeting the socket at socketPath.
func NewSocketNotifier(socketPath string, logger *slog.Logger) *SocketNotifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SocketNotifier{
		path: socketPath,
		client: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
		logger: logger,
	}
}

// Notify implements ports.Notifier.
func (n *SocketNotifier) Notify(ctx context.Context, note ports.Notification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return err
	}

	// The host is a placeholder; the transport dials the socket regardless.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://foreman/notify", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification socket %s unreachable: %w", n.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}
	return nil
}
