package relaydb

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spacehauc/gshub/pkg/frame"
	"github.com/spacehauc/gshub/pkg/relay"
	"github.com/spacehauc/gshub/pkg/vertex"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	cur, tgt, err := db.Version()
	if err != nil {
		t.Fatal(err)
	}
	if cur != 0 {
		t.Fatal("current version not 0")
	}
	if err := db.MigrateUp(context.Background(), tgt); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestRelayEventAudit(t *testing.T) {
	db := openTestDB(t)

	f := frame.Frame{Origin: vertex.CLIENT, Destination: vertex.HAYSTACK, Type: frame.Data, PayloadSize: 1}
	f.Payload[0] = 0x7F

	sink := LoggingSink{DB: db, OnErr: func(err error) { t.Errorf("unexpected record error: %v", err) }}
	sink.Record(relay.Event{Vertex: vertex.CLIENT, Result: relay.ResultRelayed, Frame: f})
	sink.Record(relay.Event{Vertex: vertex.CLIENT, Result: relay.ResultUnroutable, Frame: f})
	sink.Record(relay.Event{Vertex: vertex.CLIENT, Result: relay.ResultRelayed, Frame: f})

	counts, err := db.CountByResult()
	if err != nil {
		t.Fatal(err)
	}
	if counts[string(relay.ResultRelayed)] != 2 {
		t.Fatalf("expected 2 relayed events, got %d", counts[string(relay.ResultRelayed)])
	}
	if counts[string(relay.ResultUnroutable)] != 1 {
		t.Fatalf("expected 1 unroutable event, got %d", counts[string(relay.ResultUnroutable)])
	}
}

func TestRelayEventAuditSurvivesEmptyDB(t *testing.T) {
	db := openTestDB(t)
	counts, err := db.CountByResult()
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 0 {
		t.Fatalf("expected no rows in a fresh db, got %v", counts)
	}
}
