package relay

import (
	"io"

	"github.com/VictoriaMetrics/metrics"

	"github.com/spacehauc/gshub/pkg/frame"
)

// Metrics is a Sink backed by a VictoriaMetrics set, exposing
// gshub_relay_frames_total, gshub_relay_bytes_total, and
// gshub_relay_connections_total.
type Metrics struct {
	set *metrics.Set
}

// NewMetrics creates a Metrics sink with its own metrics.Set.
func NewMetrics() *Metrics {
	return &Metrics{set: metrics.NewSet()}
}

// WritePrometheus writes the set in Prometheus exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

func (m *Metrics) Record(e Event) {
	m.set.GetOrCreateCounter(`gshub_relay_frames_total{vertex="` + e.Vertex.String() + `",result="` + string(e.Result) + `"}`).Inc()

	switch e.Result {
	case ResultRelayed, ResultPolled:
		m.set.GetOrCreateCounter(`gshub_relay_bytes_total{vertex="` + e.Vertex.String() + `",direction="in"}`).Add(frame.FrameSize)
		m.set.GetOrCreateCounter(`gshub_relay_bytes_total{vertex="` + e.Frame.Destination.String() + `",direction="out"}`).Add(frame.FrameSize)
	case ResultTimeout, ResultClosed:
		m.set.GetOrCreateCounter(`gshub_relay_connections_total{vertex="` + e.Vertex.String() + `",event="` + string(e.Result) + `"}`).Inc()
	}
}

// MultiSink fans a single Event out to every sink in order.
type MultiSink []Sink

func (ms MultiSink) Record(e Event) {
	for _, s := range ms {
		if s != nil {
			s.Record(e)
		}
	}
}
