// Package redis provides Redis-backed checkpoint storage. Each plan maps to a
// hash keyed by task ID so record overwrites stay a single HSET.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/planforge/planforge/pkg/checkpoint"
	"github.com/planforge/planforge/pkg/models"
)

const keyPrefix = "planforge:checkpoint:"

type Store struct {
	client redis.UniversalClient
}

// NewStore connects to Redis at the given URL ("redis://host:port/db") and
// verifies the connection before returning.
func NewStore(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client. Used by tests.
func NewStoreWithClient(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func key(planID string) string {
	return keyPrefix + planID
}

// Save writes one task outcome into the plan's checkpoint hash.
func (s *Store) Save(ctx context.Context, planID, taskID string, result models.TaskResult) error {
	record := models.CheckpointRecord{
		TaskID:    taskID,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint record for task %s: %w", taskID, err)
	}

	if err := s.client.HSet(ctx, key(planID), taskID, data).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint for plan %s: %w", planID, err)
	}

	return nil
}

// Load returns the checkpoint for a plan, empty when none has been written.
// Records are ordered by timestamp so replay semantics match the file backend.
func (s *Store) Load(ctx context.Context, planID string) (*models.Checkpoint, error) {
	fields, err := s.client.HGetAll(ctx, key(planID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for plan %s: %w", planID, err)
	}

	cp := &models.Checkpoint{PlanID: planID}

	for taskID, raw := range fields {
		var record models.CheckpointRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint record for task %s: %w", taskID, err)
		}

		cp.Records = append(cp.Records, record)
	}

	sortRecords(cp.Records)

	return cp, nil
}

// Clear removes the plan's checkpoint hash.
func (s *Store) Clear(ctx context.Context, planID string) error {
	if err := s.client.Del(ctx, key(planID)).Err(); err != nil {
		return fmt.Errorf("failed to clear checkpoint for plan %s: %w", planID, err)
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}

func sortRecords(records []models.CheckpointRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

var _ checkpoint.Store = (*Store)(nil)
