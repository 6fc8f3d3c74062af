package peer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/spacehauc/gshub/pkg/vertex"
)

func TestVertexListenerAcceptsAndAdopts(t *testing.T) {
	ep := NewEndpoint(vertex.ROOFUHF, 0)
	l := &VertexListener{
		Logger:        zerolog.Nop(),
		Vertex:        vertex.ROOFUHF,
		Addr:          "127.0.0.1:0",
		Endpoint:      ep,
		AcceptTimeout: 100 * time.Millisecond,
	}

	// Serve needs a fixed address to dial, so bind once up front to learn
	// the ephemeral port, then hand the same address to Serve.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := probe.Addr().String()
	probe.Close()
	l.Addr = addr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- l.Serve(ctx) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for !ep.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("endpoint never became ready")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-serveErr:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
