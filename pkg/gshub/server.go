package gshub

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/spacehauc/gshub/db/relaydb"
	"github.com/spacehauc/gshub/pkg/frame"
	"github.com/spacehauc/gshub/pkg/peer"
	"github.com/spacehauc/gshub/pkg/relay"
	"github.com/spacehauc/gshub/pkg/relaylog"
	"github.com/spacehauc/gshub/pkg/vertex"
)

// Server owns every vertex's listener and endpoint, the routing hub, and
// the ambient services (relay logs, optional audit db, metrics).
type Server struct {
	Logger zerolog.Logger

	NotifySocket string
	Metrics      *relay.Metrics

	endpoints [len(vertex.Named)]*peer.Endpoint
	listeners [len(vertex.Named)]*peer.VertexListener
	logs      [len(vertex.Named)]*relaylog.Logger
	auditDB   *relaydb.DB
	hub       *relay.Hub

	closed bool
}

// NewServer configures a new server from c, which is assumed to already
// hold default or configured values (as set by Config.UnmarshalEnv).
func NewServer(c *Config, logger zerolog.Logger) (*Server, error) {
	if c.MaxPayload != frame.MaxPayload {
		return nil, fmt.Errorf("configured max payload %d does not match the compiled wire format (%d)", c.MaxPayload, frame.MaxPayload)
	}

	s := &Server{
		Logger:       logger,
		NotifySocket: c.NotifySocket,
		Metrics:      relay.NewMetrics(),
	}

	sinks := relay.MultiSink{s.Metrics}

	if c.RelayAuditDSN != "" {
		db, err := relaydb.Open(c.RelayAuditDSN)
		if err != nil {
			return nil, fmt.Errorf("open relay audit db: %w", err)
		}
		cur, tgt, err := db.Version()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("get relay audit db version: %w", err)
		}
		if cur != tgt {
			if err := db.MigrateUp(context.Background(), tgt); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate relay audit db: %w", err)
			}
		}
		s.auditDB = db
		sinks = append(sinks, relaydb.LoggingSink{
			DB: db,
			OnErr: func(err error) {
				s.Logger.Err(err).Msg("failed to record relay audit event")
			},
		})
	}

	for _, v := range vertex.Named {
		v := v
		l, err := relaylog.New(c.RelayLogDir, v, c.RelayLogMaxBytes)
		if err != nil {
			return nil, fmt.Errorf("create relay log for %s: %w", v, err)
		}
		s.logs[v] = l
		// each vertex's relay log records only the events of that vertex's
		// worker.
		sinks = append(sinks, relay.SinkFunc(func(e relay.Event) {
			if e.Vertex == v {
				l.Record(e)
			}
		}))
	}

	for _, v := range vertex.Named {
		port, ok := vertex.Port(uint16(c.BasePort), v)
		if !ok {
			return nil, fmt.Errorf("vertex %s has no port", v)
		}

		ep := peer.NewEndpoint(v, c.RecvTimeout)
		s.endpoints[v] = ep
		s.listeners[v] = &peer.VertexListener{
			Logger:        logger.With().Str("component", "listener").Logger(),
			Vertex:        v,
			Addr:          net.JoinHostPort("", strconv.Itoa(int(port))),
			Endpoint:      ep,
			AcceptTimeout: c.AcceptTimeout,
			BindRetry:     c.BindRetry,
		}
	}

	s.hub = relay.NewHub(logger.With().Str("component", "relay").Logger(), sinks, s.endpoints)

	return s, nil
}

// Run starts every vertex's listener and routing worker, and a periodic
// housekeeping ticker, then blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("gshub: server already closed")
	}

	var wg sync.WaitGroup
	for _, v := range vertex.Named {
		v := v
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := s.listeners[v].Serve(ctx); err != nil && ctx.Err() == nil {
				s.Logger.Err(err).Str("vertex", v.String()).Msg("listener exited unexpectedly")
			}
		}()
		go func() {
			defer wg.Done()
			s.hub.RunVertex(ctx, v)
		}()
	}

	go func() {
		tk := time.NewTicker(time.Minute)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				s.Logger.Info().Uint8("netstat", s.hub.Netstat()).Msg("housekeeping tick")
			}
		}
	}()

	go s.sdnotify("READY=1")

	<-ctx.Done()
	s.closed = true
	go s.sdnotify("STOPPING=1")

	for _, v := range vertex.Named {
		s.endpoints[v].Close()
	}

	wg.Wait()

	if s.auditDB != nil {
		s.auditDB.Close()
	}

	return ctx.Err()
}

// HandleSIGHUP reopens every vertex's relay log file.
func (s *Server) HandleSIGHUP() {
	if s.closed {
		return
	}
	s.sdnotify("RELOADING=1")
	defer s.sdnotify("READY=1")

	for _, v := range vertex.Named {
		if err := s.logs[v].Reopen(); err != nil {
			s.Logger.Err(err).Str("vertex", v.String()).Msg("failed to reopen relay log")
		}
	}
}

func (s *Server) sdnotify(state string) (bool, error) {
	if s.NotifySocket == "" {
		return false, nil
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: s.NotifySocket, Net: "unixgram"})
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if _, err = conn.Write([]byte(state)); err != nil {
		return false, err
	}
	return true, nil
}
