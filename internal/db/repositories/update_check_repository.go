// Package repositories implements the queries of the update history
// database.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fairpm/fair-go/internal/db/models"
	"github.com/fairpm/fair-go/internal/updates"
)

// DefaultListLimit bounds list queries that pass no limit.
const DefaultListLimit = 100

// UpdateCheckRepository stores update check history. It satisfies
// updates.HistoryRecorder.
type UpdateCheckRepository struct {
	db *sqlx.DB
}

// NewUpdateCheckRepository creates a new UpdateCheckRepository
func NewUpdateCheckRepository(db *sqlx.DB) *UpdateCheckRepository {
	return &UpdateCheckRepository{db: db}
}

var _ updates.HistoryRecorder = (*UpdateCheckRepository)(nil)

// RecordCheck inserts one check event.
func (r *UpdateCheckRepository) RecordCheck(ctx context.Context, ev updates.CheckEvent) error {
	row := models.UpdateCheck{
		ID:            uuid.New().String(),
		DID:           ev.DID,
		Kind:          string(ev.Kind),
		RelativePath:  ev.RelativePath,
		LocalVersion:  ev.LocalVersion,
		RemoteVersion: ev.RemoteVersion,
		Outcome:       ev.Outcome,
		ErrorKind:     ev.ErrorKind,
		Error:         ev.Error,
		DurationMS:    ev.Duration.Milliseconds(),
		CheckedAt:     ev.CheckedAt,
	}
	if row.CheckedAt.IsZero() {
		row.CheckedAt = time.Now()
	}

	query := `
		INSERT INTO update_checks (id, did, kind, relative_path, local_version, remote_version, outcome, error_kind, error, duration_ms, checked_at)
		VALUES (:id, :did, :kind, :relative_path, :local_version, :remote_version, :outcome, :error_kind, :error, :duration_ms, :checked_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to insert update check: %w", err)
	}
	return nil
}

// ListByDID returns the most recent checks of one package, newest first.
func (r *UpdateCheckRepository) ListByDID(ctx context.Context, did string, limit int) ([]models.UpdateCheck, error) {
	query := `
		SELECT id, did, kind, relative_path, local_version, remote_version, outcome, error_kind, error, duration_ms, checked_at
		FROM update_checks
		WHERE did = $1
		ORDER BY checked_at DESC
		LIMIT $2
	`
	var rows []models.UpdateCheck
	if err := r.db.SelectContext(ctx, &rows, query, did, normalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to list update checks: %w", err)
	}
	return rows, nil
}

// Recent returns the most recent checks across all packages.
func (r *UpdateCheckRepository) Recent(ctx context.Context, limit int) ([]models.UpdateCheck, error) {
	query := `
		SELECT id, did, kind, relative_path, local_version, remote_version, outcome, error_kind, error, duration_ms, checked_at
		FROM update_checks
		ORDER BY checked_at DESC
		LIMIT $1
	`
	var rows []models.UpdateCheck
	if err := r.db.SelectContext(ctx, &rows, query, normalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to list update checks: %w", err)
	}
	return rows, nil
}

// Summary counts checks per outcome since the given time.
func (r *UpdateCheckRepository) Summary(ctx context.Context, since time.Time) ([]models.OutcomeCount, error) {
	query := `
		SELECT outcome, COUNT(*) AS count
		FROM update_checks
		WHERE checked_at >= $1
		GROUP BY outcome
		ORDER BY outcome
	`
	var counts []models.OutcomeCount
	if err := r.db.SelectContext(ctx, &counts, query, since); err != nil {
		return nil, fmt.Errorf("failed to summarize update checks: %w", err)
	}
	return counts, nil
}

// Prune deletes checks older than before and returns how many were removed.
func (r *UpdateCheckRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM update_checks WHERE checked_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune update checks: %w", err)
	}
	return res.RowsAffected()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
