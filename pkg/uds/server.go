package uds

import (
	"main/pkg/exception"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
)

const unixNetwork = "unix"

// Server listens for Unix domain socket connections.
type Server struct {
	addr   net.UnixAddr
	ln     *net.UnixListener
	closed atomic.Bool
}

// NewServer creates a server for the provided socket path.
func NewServer(path string) (*Server, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return &Server{addr: net.UnixAddr{Name: path, Net: unixNetwork}}, nil
}

// Path returns the configured socket path.
func (s *Server) Path() string {
	if s == nil {
		return ""
	}
	return s.addr.Name
}

// Listen starts listening on the configured socket path.
// The parent directory is created when missing and a stale socket
// file left by a previous run is removed before binding.
func (s *Server) Listen() error {
	if s == nil {
		return exception.ErrNilServerUDS
	}
	if s.addr.Name == "" {
		return exception.ErrEmptyPathUDS
	}
	if s.ln != nil {
		return exception.ErrAlreadyListeningUDS
	}
	if dir := filepath.Dir(s.addr.Name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := RemoveIfExists(s.addr.Name); err != nil {
		return err
	}
	ln, err := net.ListenUnix(unixNetwork, &s.addr)
	if err != nil {
		return err
	}
	ln.SetUnlinkOnClose(true)
	s.ln = ln
	return nil
}

// Accept waits for the next incoming connection.
// It unblocks with net.ErrClosed after Close.
func (s *Server) Accept() (*net.UnixConn, error) {
	if s == nil {
		return nil, exception.ErrNilServerUDS
	}
	if s.ln == nil {
		return nil, exception.ErrNotListeningUDS
	}
	return s.ln.AcceptUnix()
}

// Close stops the listener and unlinks the socket file. Idempotent;
// closing a server that never listened is a no-op. The listener field
// is kept in place so a concurrent Accept observes net.ErrClosed
// instead of racing a nil.
func (s *Server) Close() error {
	if s == nil {
		return exception.ErrNilServerUDS
	}
	if s.ln == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.ln.Close()
}

// RemoveIfExists removes the socket file if it exists.
// A path occupied by anything other than a socket is refused.
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
