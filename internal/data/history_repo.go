package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/data/pgxutil"
	"github.com/espeech/espeech-api/internal/domain/model"
	apperrors "github.com/espeech/espeech-api/internal/errors"
)

// Advisory lock namespace for history cleanup.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
const (
	advisoryLockHistoryMajor  = 2000
	advisoryLockHistoryDelete = 1
)

// HistoryRepo persists terminal jobs in Postgres.
type HistoryRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewHistoryRepo creates a new HistoryRepo.
func NewHistoryRepo(db *sql.DB, tp TimeProvider) *HistoryRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &HistoryRepo{DB: db, timeProvider: tp}
}

// Record inserts rec. Recording the same job twice is a no-op.
func (r *HistoryRepo) Record(ctx context.Context, rec model.HistoryRecord) error {
	if r == nil || r.DB == nil {
		return ErrHistoryNotConfigured
	}
	if rec.JobID == "" {
		return ErrJobIDRequired
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO synthesis_job_history
			(job_id, voice_id, status, format, text_preview, error, filename, duration_ms, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10)
	`,
		rec.JobID, rec.VoiceID, string(rec.Status), string(rec.Format), rec.TextPreview,
		rec.Error, rec.Filename, rec.DurationMs, rec.CreatedAt.UTC(), rec.CompletedAt.UTC(),
	)
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsConflict(mapped) {
			return nil
		}
		return fmt.Errorf("insert history: %w", mapped)
	}
	return nil
}

// List returns the most recently completed records first.
func (r *HistoryRepo) List(ctx context.Context, limit int) ([]*model.HistoryRecord, error) {
	if r == nil || r.DB == nil {
		return nil, ErrHistoryNotConfigured
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT job_id, voice_id, status, format, text_preview,
		       COALESCE(error, ''), COALESCE(filename, ''), duration_ms, created_at, completed_at
		FROM synthesis_job_history
		ORDER BY completed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", apperrors.MapDBError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []*model.HistoryRecord
	for rows.Next() {
		var (
			rec            model.HistoryRecord
			status, format string
		)
		if err = rows.Scan(
			&rec.JobID, &rec.VoiceID, &status, &format, &rec.TextPreview,
			&rec.Error, &rec.Filename, &rec.DurationMs, &rec.CreatedAt, &rec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Status = model.JobStatus(status)
		rec.Format = model.AudioFormat(format)
		out = append(out, &rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// DeleteOlderThan deletes up to BatchSize records completed more than MaxAge ago.
// Uses an advisory lock so concurrent reapers do not contend on the same rows.
func (r *HistoryRepo) DeleteOlderThan(ctx context.Context, params core.DeleteOldHistoryParams) (int64, error) {
	if r == nil || r.DB == nil {
		return 0, ErrHistoryNotConfigured
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := pgxutil.TryAdvisoryXactLock(ctx, tx, advisoryLockHistoryMajor, advisoryLockHistoryDelete)
			if err != nil || !locked {
				return err
			}

			cutoff := r.timeProvider.Now().Add(-params.MaxAge).UTC()
			res, err := tx.ExecContext(ctx, `
				DELETE FROM synthesis_job_history
				WHERE job_id IN (
					SELECT job_id FROM synthesis_job_history
					WHERE completed_at < $1
					ORDER BY completed_at
					LIMIT $2
				)
			`, cutoff, params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old history: %w", err)
			}

			rowsAffected, err = res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

var _ core.HistoryRepository = (*HistoryRepo)(nil)
