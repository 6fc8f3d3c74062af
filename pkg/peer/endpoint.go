// Package peer manages the single live TCP connection the hub keeps open per
// vertex: accepting it, framing reads and writes over it, and replacing it
// when a new connection arrives.
package peer

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/spacehauc/gshub/pkg/frame"
	"github.com/spacehauc/gshub/pkg/vertex"
)

// ErrNotReady is returned by SendFrame/RecvFrame when no connection is
// currently adopted.
var ErrNotReady = errors.New("peer: not ready")

// ErrTimeout is returned (wrapped) when a read or write exceeds its deadline.
var ErrTimeout = errors.New("peer: timed out")

// ErrClosed is returned (wrapped) when the peer connection was closed out
// from under a send or receive, either by the remote side or by Close.
var ErrClosed = errors.New("peer: closed")

// Endpoint owns the single active connection for one vertex. It is safe for
// concurrent use: SendFrame serializes against other sends, RecvFrame is
// intended to be called from a single owning goroutine, and Adopt/Close may
// run concurrently with either.
type Endpoint struct {
	Vertex vertex.Vertex

	mu   sync.Mutex
	conn net.Conn

	ready atomic.Bool

	recvTimeout time.Duration
}

// NewEndpoint creates an Endpoint for v with no adopted connection.
func NewEndpoint(v vertex.Vertex, recvTimeout time.Duration) *Endpoint {
	return &Endpoint{Vertex: v, recvTimeout: recvTimeout}
}

// Ready reports whether the endpoint currently holds a live connection. This
// is the per-vertex bit the hub ORs together to build the netstat bitmap.
func (e *Endpoint) Ready() bool {
	return e.ready.Load()
}

// Adopt replaces any existing connection with conn. The previous connection,
// if any, is closed. This is the singleton-connection-per-vertex rule: the
// newest accepted connection always wins.
func (e *Endpoint) Adopt(conn net.Conn) {
	e.mu.Lock()
	old := e.conn
	e.conn = conn
	e.mu.Unlock()

	if old != nil {
		old.Close()
	}
	e.ready.Store(true)
}

// Close discards the adopted connection, if any, and marks the endpoint not
// ready.
func (e *Endpoint) Close() {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()

	e.ready.Store(false)
	if conn != nil {
		conn.Close()
	}
}

// closeConn tears down conn only if it is still the endpoint's current
// connection. A blocked SendFrame/RecvFrame that fails because Adopt swapped
// in a newer connection out from under it must not clear or close that
// newer connection; the newest connection always wins.
func (e *Endpoint) closeConn(conn net.Conn) {
	e.mu.Lock()
	if e.conn != conn {
		e.mu.Unlock()
		return
	}
	e.conn = nil
	e.mu.Unlock()

	e.ready.Store(false)
	conn.Close()
}

// SendFrame encodes and writes f to the adopted connection. It returns
// ErrNotReady if no connection is adopted.
func (e *Endpoint) SendFrame(f *frame.Frame) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()

	if conn == nil {
		return ErrNotReady
	}

	var buf [frame.FrameSize]byte
	n, err := f.Encode(buf[:])
	if err != nil {
		return fmt.Errorf("peer: encode: %w", err)
	}

	if _, err := conn.Write(buf[:n]); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		e.closeConn(conn)
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// RecvFrame reads and decodes exactly one frame from the adopted connection,
// applying the endpoint's configured receive timeout. A malformed frame is
// returned as a *frame.Malformed error without closing the connection; a
// read timeout or peer disconnect closes it, since both mean the connection
// can no longer be trusted to be frame-aligned.
func (e *Endpoint) RecvFrame() (frame.Frame, error) {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()

	if conn == nil {
		return frame.Frame{}, ErrNotReady
	}

	if e.recvTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(e.recvTimeout))
	}

	var buf [frame.FrameSize]byte
	if _, err := readFull(conn, buf[:]); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			e.closeConn(conn)
			return frame.Frame{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		e.closeConn(conn)
		return frame.Frame{}, fmt.Errorf("%w: %v", ErrClosed, err)
	}

	f, err := frame.Decode(buf[:])
	if err != nil {
		return frame.Frame{}, err
	}
	return f, nil
}

// readFull reads len(buf) bytes from conn, treating EOF as a connection close.
func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
