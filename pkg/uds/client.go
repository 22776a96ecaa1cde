package uds

import (
	"context"
	"net"

	"engine/pkg/exception"
)

const unixNetwork = "unix"

// Client dials Unix domain sockets.
type Client struct {
	path   string
	dialer net.Dialer
}

// NewClient creates a client for the provided socket path.
func NewClient(path string) (*Client, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return &Client{path: path}, nil
}

// Path returns the configured socket path.
func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Dial opens a connection, giving up when ctx is done.
func (c *Client) Dial(ctx context.Context) (net.Conn, error) {
	if c == nil {
		return nil, exception.ErrNilClientUDS
	}
	return c.dialer.DialContext(ctx, unixNetwork, c.path)
}
