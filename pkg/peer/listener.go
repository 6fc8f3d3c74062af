package peer

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/spacehauc/gshub/pkg/vertex"
)

// VertexListener owns the TCP listening socket for one vertex and feeds
// accepted connections into its Endpoint, replacing whatever connection is
// currently adopted.
type VertexListener struct {
	Logger zerolog.Logger

	Vertex   vertex.Vertex
	Addr     string
	Endpoint *Endpoint

	// AcceptTimeout bounds how long Accept blocks between retries so Serve
	// can observe ctx cancellation promptly. Zero disables the timeout.
	AcceptTimeout time.Duration

	// BindRetry is how long to wait between failed bind attempts.
	BindRetry time.Duration
}

// Serve binds addr and accepts connections until ctx is cancelled, adopting
// each one onto the vertex's Endpoint. It retries failed binds (e.g. the
// port still being in TIME_WAIT from a previous run) until ctx is
// cancelled or a bind succeeds.
func (l *VertexListener) Serve(ctx context.Context) error {
	lc := net.ListenConfig{Control: controlReuseAddr}

	var ln net.Listener
	for {
		var err error
		ln, err = lc.Listen(ctx, "tcp", l.Addr)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.Logger.Err(err).Str("vertex", l.Vertex.String()).Str("addr", l.Addr).Msg("bind failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.bindRetry()):
		}
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	l.Logger.Info().Str("vertex", l.Vertex.String()).Str("addr", l.Addr).Msg("listening")

	for {
		if tl, ok := ln.(*net.TCPListener); ok && l.AcceptTimeout > 0 {
			tl.SetDeadline(time.Now().Add(l.AcceptTimeout))
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			l.Logger.Err(err).Str("vertex", l.Vertex.String()).Msg("accept failed")
			continue
		}

		l.Logger.Info().
			Str("vertex", l.Vertex.String()).
			Str("remote", conn.RemoteAddr().String()).
			Msg("accepted connection")

		l.Endpoint.Adopt(conn)
	}
}

func (l *VertexListener) bindRetry() time.Duration {
	if l.BindRetry > 0 {
		return l.BindRetry
	}
	return 5 * time.Second
}
