package uds

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"main/pkg/exception"
)

func TestNewServerEmptyPath(t *testing.T) {
	if _, err := NewServer(""); !errors.Is(err, exception.ErrEmptyPathUDS) {
		t.Fatalf("expected ErrEmptyPathUDS, got %v", err)
	}
}

func TestNewClientEmptyPath(t *testing.T) {
	if _, err := NewClient(""); !errors.Is(err, exception.ErrEmptyPathUDS) {
		t.Fatalf("expected ErrEmptyPathUDS, got %v", err)
	}
}

func TestNilReceivers(t *testing.T) {
	var s *Server
	if err := s.Listen(); !errors.Is(err, exception.ErrNilServerUDS) {
		t.Fatalf("expected ErrNilServerUDS, got %v", err)
	}
	if _, err := s.Accept(); !errors.Is(err, exception.ErrNilServerUDS) {
		t.Fatalf("expected ErrNilServerUDS, got %v", err)
	}
	var c *Client
	if _, err := c.Dial(); !errors.Is(err, exception.ErrNilClientUDS) {
		t.Fatalf("expected ErrNilClientUDS, got %v", err)
	}
}

func TestAcceptBeforeListen(t *testing.T) {
	s, err := NewServer(filepath.Join(t.TempDir(), "a.sock"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Accept(); !errors.Is(err, exception.ErrNotListeningUDS) {
		t.Fatalf("expected ErrNotListeningUDS, got %v", err)
	}
}

func TestListenTwice(t *testing.T) {
	s, err := NewServer(filepath.Join(t.TempDir(), "a.sock"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Listen(); !errors.Is(err, exception.ErrAlreadyListeningUDS) {
		t.Fatalf("expected ErrAlreadyListeningUDS, got %v", err)
	}
}

func TestListenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "a.sock")
	s, err := NewServer(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("socket file missing: %v", err)
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.sock")

	first, err := NewServer(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Listen(); err != nil {
		t.Fatal(err)
	}
	// Simulate a crash that leaves the socket file behind.
	first.ln.SetUnlinkOnClose(false)
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stale socket should remain: %v", err)
	}

	second, err := NewServer(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Listen(); err != nil {
		t.Fatalf("rebind over stale socket: %v", err)
	}
	_ = second.Close()
}

func TestRemoveIfExistsRefusesNonSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regular.file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); !errors.Is(err, exception.ErrPathNotSocketUDS) {
		t.Fatalf("expected ErrPathNotSocketUDS, got %v", err)
	}
}

func TestDialAndEcho(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echo.sock")
	s, err := NewServer(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	go func() {
		conn, err := s.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		_, _ = conn.Write(buf[:n])
	}()

	c, err := NewClient(path)
	if err != nil {
		t.Fatal(err)
	}
	conn, err := c.Dial()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	want := []byte("ping")
	if _, err := conn.Write(want); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make([]byte, len(want))
	if _, err := conn.Read(got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(want, got) {
		t.Fatalf("echo mismatch: want %q, got %q", want, got)
	}
}

func TestAcceptAfterCloseReturnsErrClosed(t *testing.T) {
	s, err := NewServer(filepath.Join(t.TempDir(), "a.sock"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	// The accept loop relies on this exact error to stop.
	if _, err := s.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("expected net.ErrClosed, got %v", err)
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestCloseUnlinksSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.sock")
	s, err := NewServer(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("socket file should be unlinked, stat err: %v", err)
	}
}

func TestDialContextCancelled(t *testing.T) {
	c, err := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.DialContext(ctx); err == nil {
		t.Fatal("expected error dialing with cancelled context")
	}
}
