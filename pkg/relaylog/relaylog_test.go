package relaylog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spacehauc/gshub/pkg/frame"
	"github.com/spacehauc/gshub/pkg/relay"
	"github.com/spacehauc/gshub/pkg/vertex"
)

func TestLoggerWritesRelayEvent(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir, vertex.HAYSTACK, 0)
	if err != nil {
		t.Fatal(err)
	}

	f := frame.Frame{Origin: vertex.CLIENT, Destination: vertex.HAYSTACK, Type: frame.Data, PayloadSize: 2}
	f.Payload[0], f.Payload[1] = 0xAB, 0xCD
	l.Record(relay.Event{Vertex: vertex.HAYSTACK, Result: relay.ResultRelayed, Frame: f})

	path := filepath.Join(dir, "HAYSTACK.log")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) == 0 {
		t.Fatal("expected a non-empty log line")
	}
	if !strings.Contains(string(b), "abcd") || !strings.Contains(string(b), "relayed") {
		t.Fatalf("log line missing expected fields: %s", b)
	}
}

func TestLoggerRotatesOnMaxBytes(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir, vertex.TRACK, 1) // force rotation on every write
	if err != nil {
		t.Fatal(err)
	}

	f := frame.Frame{Origin: vertex.CLIENT, Destination: vertex.TRACK, Type: frame.Data, PayloadSize: 1}
	for i := 0; i < 3; i++ {
		l.Record(relay.Event{Vertex: vertex.TRACK, Result: relay.ResultRelayed, Frame: f})
	}

	// give the background archival goroutines a moment to finish.
	deadline := time.Now().Add(time.Second)
	var matches []string
	for time.Now().Before(deadline) {
		matches, _ = filepath.Glob(filepath.Join(dir, "TRACK.log.*.gz"))
		if len(matches) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(matches) < 2 {
		t.Fatalf("expected at least 2 archived log files, got %v", matches)
	}
}

func TestLoggerReopenForcesRotation(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir, vertex.ROOFXBAND, 0)
	if err != nil {
		t.Fatal(err)
	}
	f := frame.Frame{Origin: vertex.CLIENT, Destination: vertex.ROOFXBAND, Type: frame.Data}
	l.Record(relay.Event{Vertex: vertex.ROOFXBAND, Result: relay.ResultRelayed, Frame: f})

	if err := l.Reopen(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	var matches []string
	for time.Now().Before(deadline) {
		matches, _ = filepath.Glob(filepath.Join(dir, "ROOFXBAND.log.*.gz"))
		if len(matches) >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(matches) < 1 {
		t.Fatal("expected Reopen to archive the active log file")
	}
}
