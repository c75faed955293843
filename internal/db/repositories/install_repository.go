package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/db/models"
	"github.com/fairpm/fair-go/internal/installer"
)

// InstallRepository stores install runs.
type InstallRepository struct {
	db *sqlx.DB
}

// NewInstallRepository creates a new InstallRepository
func NewInstallRepository(db *sqlx.DB) *InstallRepository {
	return &InstallRepository{db: db}
}

// RecordInstall inserts the outcome of one install run. installErr is the
// error Install returned, if any.
func (r *InstallRepository) RecordInstall(ctx context.Context, res *installer.Result, startedAt time.Time, installErr error) error {
	row := models.Install{
		ID:          res.RunID,
		DID:         res.DID,
		Kind:        string(res.Kind),
		Version:     res.Version,
		Destination: res.Destination,
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
	}
	if n := len(res.States); n > 0 {
		row.FinalState = string(res.States[n-1])
	}
	if installErr != nil {
		row.ErrorKind = apperr.Kind(installErr)
		row.Error = installErr.Error()
	}

	query := `
		INSERT INTO installs (id, did, kind, version, destination, final_state, error_kind, error, started_at, finished_at)
		VALUES (:id, :did, :kind, :version, :destination, :final_state, :error_kind, :error, :started_at, :finished_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to insert install: %w", err)
	}
	return nil
}

// List returns the most recent install runs, newest first. A non-empty did
// filters to one package.
func (r *InstallRepository) List(ctx context.Context, did string, limit int) ([]models.Install, error) {
	query := `
		SELECT id, did, kind, version, destination, final_state, error_kind, error, started_at, finished_at
		FROM installs
		WHERE ($1 = '' OR did = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`
	var rows []models.Install
	if err := r.db.SelectContext(ctx, &rows, query, did, normalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to list installs: %w", err)
	}
	return rows, nil
}
