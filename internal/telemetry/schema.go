package telemetry

import (
	"database/sql"

	"codeberg.org/lumabox/illumctl/internal/errors"
)

// initSchema initializes the database schema for telemetry data
func initSchema(db *sql.DB) error {
	errFactory := errors.New()

	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS frames (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            frame_index INTEGER,
            timestamp_ms INTEGER,
            intermittent_output REAL,
            analysis_ms INTEGER,
            fps INTEGER
        );
        CREATE TABLE IF NOT EXISTS ticks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            timestamp_ms INTEGER,
            signal REAL,
            setpoint REAL,
            controller_output REAL,
            applied_power REAL
        );
        CREATE INDEX IF NOT EXISTS idx_frames_run ON frames(run_id);
        CREATE INDEX IF NOT EXISTS idx_ticks_run ON ticks(run_id);
    `)
	if err != nil {
		return errFactory.Wrap(ErrStorageInit, err)
	}

	return nil
}
