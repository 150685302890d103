package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/jmoiron/sqlx"
)

// SyncRunRepository stores [models.SyncRun] records.
type SyncRunRepository struct {
	db *sqlx.DB
}

// NewSyncRunRepository creates a new SyncRunRepository with the given database connection
func NewSyncRunRepository(db *sqlx.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// RunListing is a stored run without its operations.
type RunListing struct {
	Run     models.SyncRun
	Summary models.RunSummary
}

type runRow struct {
	ID               string       `db:"id"`
	Direction        string       `db:"direction"`
	SourcePlaylistID string       `db:"source_playlist_id"`
	TargetPlaylistID string       `db:"target_playlist_id"`
	MaxOperations    int          `db:"max_operations"`
	Mirror           bool         `db:"mirror"`
	State            string       `db:"state"`
	Error            string       `db:"error"`
	StartedAt        time.Time    `db:"started_at"`
	EndedAt          sql.NullTime `db:"ended_at"`
	Succeeded        int          `db:"succeeded"`
	Failed           int          `db:"failed"`
	Skipped          int          `db:"skipped"`
}

type operationRow struct {
	RunID     string `db:"run_id"`
	Position  int    `db:"position"`
	TrackJSON string `db:"track_json"`
	models.SyncOperation
}

const runColumns = `id, direction, source_playlist_id, target_playlist_id, max_operations, mirror,
	state, error, started_at, ended_at, succeeded, failed, skipped`

// Save inserts or replaces run and all of its operations in one transaction.
func (r *SyncRunRepository) Save(ctx context.Context, run *models.SyncRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: sync run id is required", shared.ErrInvalidInput)
	}

	s := run.Summary()
	row := runRow{
		ID:               run.ID,
		Direction:        run.Direction.String(),
		SourcePlaylistID: run.SourcePlaylistID,
		TargetPlaylistID: run.TargetPlaylistID,
		MaxOperations:    run.MaxOperations,
		Mirror:           run.Mirror,
		State:            string(run.State),
		Error:            run.Error,
		StartedAt:        run.StartedAt,
		Succeeded:        s.Succeeded,
		Failed:           s.Failed,
		Skipped:          s.Skipped,
	}
	if run.EndedAt != nil {
		row.EndedAt = sql.NullTime{Time: *run.EndedAt, Valid: true}
	}

	ops := make([]operationRow, len(run.Operations))
	for i, op := range run.Operations {
		track, err := json.Marshal(op.Track)
		if err != nil {
			return fmt.Errorf("failed to encode track of operation %d: %w", i, err)
		}
		ops[i] = operationRow{RunID: run.ID, Position: i, TrackJSON: string(track), SyncOperation: op}
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO sync_runs (` + runColumns + `)
			VALUES (:id, :direction, :source_playlist_id, :target_playlist_id, :max_operations, :mirror,
				:state, :error, :started_at, :ended_at, :succeeded, :failed, :skipped)
			ON CONFLICT(id) DO UPDATE SET
				state = excluded.state,
				error = excluded.error,
				ended_at = excluded.ended_at,
				succeeded = excluded.succeeded,
				failed = excluded.failed,
				skipped = excluded.skipped
		`
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to save sync run: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM sync_operations WHERE run_id = ?`, run.ID); err != nil {
			return fmt.Errorf("failed to clear sync operations: %w", err)
		}

		insert := `
			INSERT INTO sync_operations (
				run_id, position, kind, track_json, target_track_id, confidence,
				idempotency_key, attempts, status, reason, last_error
			)
			VALUES (:run_id, :position, :kind, :track_json, :target_track_id, :confidence,
				:idempotency_key, :attempts, :status, :reason, :last_error)
		`
		for _, op := range ops {
			if _, err := tx.NamedExecContext(ctx, insert, op); err != nil {
				return fmt.Errorf("failed to save sync operation %d: %w", op.Position, err)
			}
		}
		return nil
	})
}

// Get retrieves a run with its operations in planning order.
// Returns [shared.ErrRunNotFound] when no run has the id.
func (r *SyncRunRepository) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM sync_runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync run: %w", err)
	}

	run, err := row.toModel()
	if err != nil {
		return nil, err
	}

	var ops []operationRow
	query := `
		SELECT run_id, position, kind, track_json, target_track_id, confidence,
			idempotency_key, attempts, status, reason, last_error
		FROM sync_operations
		WHERE run_id = ?
		ORDER BY position
	`
	if err := r.db.SelectContext(ctx, &ops, query, id); err != nil {
		return nil, fmt.Errorf("failed to get sync operations: %w", err)
	}

	run.Operations = make([]models.SyncOperation, len(ops))
	for i, op := range ops {
		if err := json.Unmarshal([]byte(op.TrackJSON), &op.SyncOperation.Track); err != nil {
			return nil, fmt.Errorf("failed to decode track of operation %d: %w", op.Position, err)
		}
		run.Operations[i] = op.SyncOperation
	}
	return run, nil
}

// List returns the most recent runs first, without operations.
func (r *SyncRunRepository) List(ctx context.Context, limit int) ([]RunListing, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []runRow
	query := `SELECT ` + runColumns + ` FROM sync_runs ORDER BY started_at DESC, id LIMIT ?`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}

	listings := make([]RunListing, 0, len(rows))
	for _, row := range rows {
		run, err := row.toModel()
		if err != nil {
			return nil, err
		}
		listings = append(listings, RunListing{
			Run: *run,
			Summary: models.RunSummary{
				Total:     row.Succeeded + row.Failed + row.Skipped,
				Succeeded: row.Succeeded,
				Failed:    row.Failed,
				Skipped:   row.Skipped,
			},
		})
	}
	return listings, nil
}

func (row runRow) toModel() (*models.SyncRun, error) {
	dir, err := models.ParseDirection(row.Direction)
	if err != nil {
		return nil, fmt.Errorf("stored run %s: %w", row.ID, err)
	}
	run := &models.SyncRun{
		ID:               row.ID,
		Direction:        dir,
		SourcePlaylistID: row.SourcePlaylistID,
		TargetPlaylistID: row.TargetPlaylistID,
		MaxOperations:    row.MaxOperations,
		Mirror:           row.Mirror,
		State:            models.RunState(row.State),
		Error:            row.Error,
		StartedAt:        row.StartedAt.UTC(),
	}
	if row.EndedAt.Valid {
		ended := row.EndedAt.Time.UTC()
		run.EndedAt = &ended
	}
	return run, nil
}
