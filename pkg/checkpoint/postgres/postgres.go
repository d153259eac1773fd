// Package postgres provides PostgreSQL-backed checkpoint storage. One row per
// (plan, task) pair so record overwrites stay a single upsert.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/planforge/planforge/pkg/checkpoint"
	"github.com/planforge/planforge/pkg/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS planforge_checkpoints (
		plan_id    TEXT        NOT NULL,
		task_id    TEXT        NOT NULL,
		result     JSONB       NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (plan_id, task_id)
	)
`

type Store struct {
	db *sql.DB
}

// NewStore connects to PostgreSQL at the given URL, verifies the connection,
// and ensures the checkpoint table exists.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint table: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing database handle. Used by tests.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save upserts one task outcome for the plan.
func (s *Store) Save(ctx context.Context, planID, taskID string, result models.TaskResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint record for task %s: %w", taskID, err)
	}

	query := `
		INSERT INTO planforge_checkpoints (plan_id, task_id, result, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (plan_id, task_id)
		DO UPDATE SET result = EXCLUDED.result, created_at = EXCLUDED.created_at
	`

	if _, err := s.db.ExecContext(ctx, query, planID, taskID, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save checkpoint for plan %s: %w", planID, err)
	}

	return nil
}

// Load returns the checkpoint for a plan, empty when none has been written.
// Records come back ordered by write time so replay semantics match the file
// backend.
func (s *Store) Load(ctx context.Context, planID string) (*models.Checkpoint, error) {
	query := `
		SELECT task_id, result, created_at
		FROM planforge_checkpoints
		WHERE plan_id = $1
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for plan %s: %w", planID, err)
	}
	defer rows.Close()

	cp := &models.Checkpoint{PlanID: planID}

	for rows.Next() {
		var (
			record models.CheckpointRecord
			data   []byte
		)

		if err := rows.Scan(&record.TaskID, &data, &record.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint record for plan %s: %w", planID, err)
		}

		if err := json.Unmarshal(data, &record.Result); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint record for task %s: %w", record.TaskID, err)
		}

		cp.Records = append(cp.Records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoint rows for plan %s: %w", planID, err)
	}

	return cp, nil
}

// Clear removes every record for the plan.
func (s *Store) Clear(ctx context.Context, planID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM planforge_checkpoints WHERE plan_id = $1`, planID); err != nil {
		return fmt.Errorf("failed to clear checkpoint for plan %s: %w", planID, err)
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

var _ checkpoint.Store = (*Store)(nil)
