package sqlite

import (
	"context"
	"fmt"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// migrate creates the schema and records its version in PRAGMA user_version.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, CurrentSchemaVersion)
	}

	if err := s.createEventsTable(ctx); err != nil {
		return err
	}

	if version < CurrentSchemaVersion {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", CurrentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func (s *Store) createEventsTable(ctx context.Context) error {
	// seq is assigned by the application inside writeMu, not by AUTOINCREMENT,
	// so it stays dense and starts at 1.
	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		seq         INTEGER PRIMARY KEY,
		id          TEXT NOT NULL UNIQUE,
		received_at TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		raw_payload BLOB NOT NULL,
		fields_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_type_seq ON events(event_type, seq);
	CREATE INDEX IF NOT EXISTS idx_events_received_at ON events(received_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	return nil
}
