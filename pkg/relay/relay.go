// Package relay implements the hub's routing core: one worker per vertex
// that receives frames from that vertex's endpoint and either answers a poll
// locally or relays the frame to its destination's endpoint.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/spacehauc/gshub/pkg/frame"
	"github.com/spacehauc/gshub/pkg/peer"
	"github.com/spacehauc/gshub/pkg/vertex"
)

// Result classifies what a Hub did with one received frame, for logging and
// metrics.
type Result string

const (
	ResultPolled      Result = "polled"
	ResultRelayed     Result = "relayed"
	ResultUnroutable  Result = "unroutable"
	ResultReservedCfg Result = "reserved_config"
	ResultMalformed   Result = "malformed"
	ResultTimeout     Result = "timeout"
	ResultClosed      Result = "closed"
)

// Event is emitted by a Hub for every frame a vertex worker handles (or
// every timeout/close it observes instead of one), for the relay log and
// the optional audit index to record.
type Event struct {
	ID     xid.ID
	Vertex vertex.Vertex
	Result Result
	Frame  frame.Frame // zero value when Result is Timeout, Closed or Malformed
	Detail string
}

// Sink receives every Event the Hub produces. Record runs on the calling
// worker, so implementations must not block it for long. pkg/relaylog and
// db/relaydb both record synchronously (a file write and a single sqlite
// insert); only relaylog's gzip archival of rotated files runs in the
// background.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Record(e Event) { f(e) }

// Hub owns the endpoints for every routable vertex and the routing logic
// between them.
type Hub struct {
	Logger zerolog.Logger
	Sink   Sink

	endpoints [len(vertex.Named)]*peer.Endpoint
}

// NewHub creates a Hub wired to one endpoint per routable vertex, indexed by
// vertex.Vertex. endpoints must be non-nil for every entry in vertex.Named.
func NewHub(logger zerolog.Logger, sink Sink, endpoints [len(vertex.Named)]*peer.Endpoint) *Hub {
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	return &Hub{Logger: logger, Sink: sink, endpoints: endpoints}
}

// endpoint returns the endpoint owning v, or nil if v is not routable.
func (h *Hub) endpoint(v vertex.Vertex) *peer.Endpoint {
	if !v.Routable() {
		return nil
	}
	return h.endpoints[v]
}

// Netstat computes the bitmap of which vertices currently hold a live
// connection. It is exported for housekeeping/status reporting; the hub
// itself always recomputes a fresh one per poll reply rather than caching
// this value.
func (h *Hub) Netstat() uint8 {
	return h.netstat()
}

// netstat computes the bitmap of which vertices currently hold a live
// connection.
func (h *Hub) netstat() uint8 {
	var bits uint8
	for _, v := range vertex.Named {
		bit, ok := vertex.NetstatBit(v)
		if !ok {
			continue
		}
		if ep := h.endpoints[v]; ep != nil && ep.Ready() {
			bits |= bit
		}
	}
	return bits
}

// RunVertex services one vertex's endpoint until ctx is cancelled: it
// repeatedly receives a frame, handles it, and loops. A timeout or close
// observed while receiving is recorded and the worker simply waits for the
// next connection (Endpoint.Adopt, called by the vertex's listener, also
// wakes a blocked RecvFrame by replacing the connection); it never exits
// early on its own.
func (h *Hub) RunVertex(ctx context.Context, v vertex.Vertex) error {
	ep := h.endpoint(v)
	if ep == nil {
		return errors.New("relay: vertex has no endpoint")
	}

	for ctx.Err() == nil {
		if !ep.Ready() {
			// nothing adopted yet; avoid a hot spin while waiting for an
			// accept.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		f, err := ep.RecvFrame()
		if err != nil {
			h.handleRecvError(v, err)
			continue
		}

		h.handleFrame(v, f)
	}
	return ctx.Err()
}

func (h *Hub) handleRecvError(v vertex.Vertex, err error) {
	switch {
	case errors.Is(err, peer.ErrTimeout):
		h.Logger.Warn().Str("vertex", v.String()).Msg("receive timed out")
		h.Sink.Record(Event{ID: xid.New(), Vertex: v, Result: ResultTimeout, Detail: err.Error()})
	case errors.Is(err, peer.ErrClosed):
		h.Logger.Info().Str("vertex", v.String()).Msg("connection closed")
		h.Sink.Record(Event{ID: xid.New(), Vertex: v, Result: ResultClosed, Detail: err.Error()})
	case errors.Is(err, peer.ErrNotReady):
		// raced with Close/Adopt between Ready() and RecvFrame(); benign.
	case errors.Is(err, frame.ErrMalformed):
		h.Logger.Warn().Str("vertex", v.String()).Err(err).Msg("malformed frame")
		h.Sink.Record(Event{ID: xid.New(), Vertex: v, Result: ResultMalformed, Detail: err.Error()})
	default:
		h.Logger.Err(err).Str("vertex", v.String()).Msg("unexpected receive error")
	}
}

func (h *Hub) handleFrame(origin vertex.Vertex, f frame.Frame) {
	if f.Destination == vertex.SERVER {
		h.handlePoll(origin, f)
		return
	}

	dest := h.endpoint(f.Destination)
	if dest == nil {
		h.Logger.Warn().
			Str("vertex", origin.String()).
			Str("destination", f.Destination.String()).
			Msg("dropping frame to unroutable destination")
		h.Sink.Record(Event{ID: xid.New(), Vertex: origin, Result: ResultUnroutable, Frame: f})
		return
	}

	f.Netstat = h.netstat()

	if err := dest.SendFrame(&f); err != nil {
		h.Logger.Warn().
			Str("vertex", origin.String()).
			Str("destination", f.Destination.String()).
			Err(err).
			Msg("failed to relay frame")
		h.Sink.Record(Event{ID: xid.New(), Vertex: origin, Result: ResultUnroutable, Frame: f, Detail: err.Error()})
		return
	}

	h.Logger.Info().
		Str("vertex", origin.String()).
		Str("destination", f.Destination.String()).
		Msg("relayed frame")
	h.Sink.Record(Event{ID: xid.New(), Vertex: origin, Result: ResultRelayed, Frame: f})
}

func (h *Hub) handlePoll(origin vertex.Vertex, f frame.Frame) {
	if f.Type != frame.Poll {
		h.Logger.Info().Str("vertex", origin.String()).Msg("dropping non-poll frame addressed to server")
		h.Sink.Record(Event{ID: xid.New(), Vertex: origin, Result: ResultReservedCfg, Frame: f})
		return
	}

	ep := h.endpoint(origin)
	if ep == nil {
		return
	}

	reply := frame.Frame{
		Origin:      vertex.SERVER,
		Destination: origin,
		Type:        frame.Poll,
		Netstat:     h.netstat(),
	}

	if err := ep.SendFrame(&reply); err != nil {
		h.Logger.Warn().Str("vertex", origin.String()).Err(err).Msg("failed to answer poll")
		return
	}

	h.Logger.Info().Str("vertex", origin.String()).Uint8("netstat", reply.Netstat).Msg("answered poll")
	h.Sink.Record(Event{ID: xid.New(), Vertex: origin, Result: ResultPolled, Frame: reply})
}
