package uds

import (
	"net"
	"os"
	"sync/atomic"

	"engine/pkg/exception"
)

// Server listens for Unix domain socket connections.
type Server struct {
	addr   net.UnixAddr
	mode   os.FileMode
	ln     *net.UnixListener
	closed atomic.Bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMode sets the permission bits of the socket file after Listen.
func WithMode(mode os.FileMode) ServerOption {
	return func(s *Server) {
		s.mode = mode
	}
}

// NewServer creates a server for the provided socket path.
func NewServer(path string, opts ...ServerOption) (*Server, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	s := &Server{addr: net.UnixAddr{Name: path, Net: unixNetwork}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the configured socket path.
func (s *Server) Path() string {
	if s == nil {
		return ""
	}
	return s.addr.Name
}

// Listen starts listening on the configured socket path.
// It removes a stale socket file left by a previous run.
func (s *Server) Listen() error {
	if s == nil {
		return exception.ErrNilServerUDS
	}
	if s.ln != nil {
		return exception.ErrAlreadyListeningUDS
	}
	if err := RemoveIfExists(s.addr.Name); err != nil {
		return err
	}
	ln, err := net.ListenUnix(unixNetwork, &s.addr)
	if err != nil {
		return err
	}
	ln.SetUnlinkOnClose(true)
	if s.mode != 0 {
		if err := os.Chmod(s.addr.Name, s.mode); err != nil {
			_ = ln.Close()
			return err
		}
	}
	s.ln = ln
	return nil
}

// Accept waits for the next incoming connection. It is safe to call Close
// from another goroutine while Accept blocks.
func (s *Server) Accept() (*net.UnixConn, error) {
	if s == nil {
		return nil, exception.ErrNilServerUDS
	}
	if s.ln == nil {
		return nil, exception.ErrNotListeningUDS
	}
	return s.ln.AcceptUnix()
}

// Closed reports whether Close has been called.
func (s *Server) Closed() bool {
	return s != nil && s.closed.Load()
}

// Close stops the listener. Only the first call has an effect.
func (s *Server) Close() error {
	if s == nil {
		return exception.ErrNilServerUDS
	}
	if s.ln == nil || s.closed.Swap(true) {
		return nil
	}
	return s.ln.Close()
}

// RemoveIfExists removes the socket file if it exists.
func RemoveIfExists(path string) error {
	if path == "" {
		return exception.ErrEmptyPathUDS
	}
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return exception.ErrPathNotSocketUDS
	}
	return os.Remove(path)
}
