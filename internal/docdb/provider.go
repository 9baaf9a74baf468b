package docdb

import (
	"context"
	"fmt"
)

// Backend selects the Client implementation
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendHTTP   Backend = "http"
)

// NewClient returns a Client for the requested backend
func NewClient(backend Backend, config HTTPConfig) (Client, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryClient(), nil
	case BackendHTTP, "":
		if config.Endpoint == "" {
			return nil, fmt.Errorf("http backend requires an endpoint")
		}
		return NewHTTPClient(config), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// ConnectedClient wraps a Client with connect-on-first-use and an explicit Close
type ConnectedClient struct {
	client    Client
	connected bool
}

// NewConnectedClient creates a new connected client wrapper
func NewConnectedClient(client Client) *ConnectedClient {
	return &ConnectedClient{
		client:    client,
		connected: false,
	}
}

// ensureConnected ensures the client is connected
func (c *ConnectedClient) ensureConnected(ctx context.Context) error {
	if !c.connected {
		if err := c.client.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to document service: %w", err)
		}
		c.connected = true
	}
	return nil
}

// Close closes the connection and cleans up
func (c *ConnectedClient) Close() error {
	if c.connected {
		err := c.client.Close()
		c.connected = false
		return err
	}
	return nil
}

// GetClient returns the underlying client, ensuring it's connected
func (c *ConnectedClient) GetClient(ctx context.Context) (Client, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return c.client, nil
}
