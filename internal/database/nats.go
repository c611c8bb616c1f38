package database

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// ConnectNATS dials the NATS server used for cross-node realtime fan-out.
// An empty URL disables NATS and returns a nil connection.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %w", err)
	}

	return conn, nil
}

// NATSStatus returns a probe for the health endpoint.
func NATSStatus(conn *nats.Conn) func(ctx context.Context) error {
	return func(context.Context) error {
		if conn == nil {
			return fmt.Errorf("nats not configured")
		}
		if !conn.IsConnected() {
			return fmt.Errorf("nats connection %s", conn.Status())
		}
		return nil
	}
}
