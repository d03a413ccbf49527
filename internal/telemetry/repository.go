package telemetry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/lumabox/illumctl/internal/errors"
	"codeberg.org/lumabox/illumctl/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

type Repository interface {
	StoreFrame(ctx context.Context, rec *FrameRecord) error
	StoreTick(ctx context.Context, rec *TickRecord) error
	Close() error
}

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	logger.Debug().Msgf("Initializing telemetry repository at: %s", cfg.DBPath)

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	return &sqliteRepository{
		db: db,
	}, nil
}

func (r *sqliteRepository) StoreFrame(ctx context.Context, rec *FrameRecord) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO frames (
            run_id, frame_index, timestamp_ms,
            intermittent_output, analysis_ms, fps
        ) VALUES (?, ?, ?, ?, ?, ?)
    `,
		rec.RunID,
		rec.FrameIndex,
		rec.TimestampMs,
		rec.Intermittent,
		rec.AnalysisMs,
		rec.FPS,
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *sqliteRepository) StoreTick(ctx context.Context, rec *TickRecord) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO ticks (
            run_id, timestamp_ms, signal,
            setpoint, controller_output, applied_power
        ) VALUES (?, ?, ?, ?, ?, ?)
    `,
		rec.RunID,
		rec.TimestampMs,
		rec.Signal,
		rec.Setpoint,
		rec.Output,
		rec.AppliedPower,
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *sqliteRepository) Close() error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}
	return nil
}
