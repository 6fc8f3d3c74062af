// Package relaydb implements the optional sqlite3-backed audit index of
// relayed and dropped frames. It is never consulted for routing decisions:
// every vertex always starts a fresh run disconnected, regardless of what
// this database holds.
package relaydb

import (
	"encoding/hex"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spacehauc/gshub/pkg/relay"
)

// DB stores relay audit rows in a sqlite3 database.
type DB struct {
	x *sqlx.DB
}

// Open opens a DB from the provided sqlite3 filename.
func Open(name string) (*DB, error) {
	x, err := sqlx.Connect("sqlite3", (&url.URL{
		Path: name,
		RawQuery: (url.Values{
			"_journal":      {"WAL"},
			"_cache_size":   {"-32000"},
			"_busy_timeout": {"6000"},
		}).Encode(),
	}).String())
	if err != nil {
		return nil, err
	}
	return &DB{x}, nil
}

func (db *DB) Close() error {
	return db.x.Close()
}

// LoggingSink is a relay.Sink that inserts one audit row per event. Insert
// errors are passed to OnErr (if set) instead of being returned, so a failing
// audit index cannot crash the routing hot path. The insert runs
// synchronously on the calling worker.
type LoggingSink struct {
	DB    *DB
	OnErr func(error)
}

func (s LoggingSink) Record(e relay.Event) {
	if err := s.DB.insert(e); err != nil && s.OnErr != nil {
		s.OnErr(err)
	}
}

func (db *DB) insert(e relay.Event) error {
	_, err := db.x.NamedExec(`
		INSERT INTO relay_events
		(   id,  at, vertex,  result,  origin,  destination,  frame_type,  payload_size,  payload_hex)
		VALUES
		(:id, :at, :vertex, :result, :origin, :destination, :frame_type, :payload_size, :payload_hex)
	`, map[string]any{
		"id":           e.ID.String(),
		"at":           time.Now().UnixNano(),
		"vertex":       e.Vertex.String(),
		"result":       string(e.Result),
		"origin":       e.Frame.Origin.String(),
		"destination":  e.Frame.Destination.String(),
		"frame_type":   e.Frame.Type.String(),
		"payload_size": e.Frame.PayloadSize,
		"payload_hex":  hex.EncodeToString(e.Frame.Payload[:e.Frame.PayloadSize]),
	})
	return err
}

// CountByResult returns the number of recorded events for each result kind,
// keyed by the relay.Result string. It exists mainly for tests and for a
// future inspection command; the hub itself never reads this back.
func (db *DB) CountByResult() (map[string]int64, error) {
	var rows []struct {
		Result string `db:"result"`
		Count  int64  `db:"count"`
	}
	if err := db.x.Select(&rows, `SELECT result, COUNT(*) AS count FROM relay_events GROUP BY result`); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Result] = r.Count
	}
	return out, nil
}
