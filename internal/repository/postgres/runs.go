package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/tenant-domains/internal/service/tenant"
)

// RunRepo implements tenant.Repository against PostgreSQL.
type RunRepo struct{ db *sql.DB }

// NewRunRepo creates a Postgres-backed run journal.
func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{db: db} }

func (r *RunRepo) Record(ctx context.Context, run *tenant.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	var overall sql.NullBool
	if run.OverallSuccess != nil {
		overall = sql.NullBool{Bool: *run.OverallSuccess, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tenant_domain_runs (id, handle, operation, overall_success, steps, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.Handle, string(run.Operation), overall, steps, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (r *RunRepo) ListByHandle(ctx context.Context, handle string, limit int) ([]tenant.Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, handle, operation, overall_success, steps, started_at, finished_at
		FROM tenant_domain_runs
		WHERE handle = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, handle, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []tenant.Run{}
	for rows.Next() {
		var (
			run     tenant.Run
			op      string
			overall sql.NullBool
			steps   []byte
		)
		if err := rows.Scan(&run.ID, &run.Handle, &op, &overall, &steps, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Operation = tenant.Operation(op)
		if overall.Valid {
			v := overall.Bool
			run.OverallSuccess = &v
		}
		if len(steps) > 0 {
			if err := json.Unmarshal(steps, &run.Steps); err != nil {
				return nil, fmt.Errorf("decode steps for run %s: %w", run.ID, err)
			}
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
