package relaydb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func init() {
	migrate(up001, down001)
}

func up001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE relay_events (
			row_id       INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT NOT NULL,
			at           INTEGER NOT NULL,
			vertex       TEXT NOT NULL,
			result       TEXT NOT NULL,
			origin       TEXT NOT NULL,
			destination  TEXT NOT NULL,
			frame_type   TEXT NOT NULL,
			payload_size INTEGER NOT NULL,
			payload_hex  TEXT NOT NULL
		) STRICT;
	`); err != nil {
		return fmt.Errorf("create relay_events table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE INDEX relay_events_vertex_at_idx ON relay_events(vertex, at)`); err != nil {
		return fmt.Errorf("create relay_events index: %w", err)
	}
	return nil
}

func down001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP INDEX relay_events_vertex_at_idx`); err != nil {
		return fmt.Errorf("drop relay_events_vertex_at_idx index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE relay_events`); err != nil {
		return fmt.Errorf("drop relay_events table: %w", err)
	}
	return nil
}
