// Package file provides file-based checkpoint storage: one JSON document per
// plan under <root>/checkpoints/.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/planforge/planforge/pkg/checkpoint"
	"github.com/planforge/planforge/pkg/models"
)

// Store implements checkpoint.Store on the local file system. A single mutex
// serializes checkpoint writes, which also gives the engine its
// one-writer-at-a-time guarantee.
type Store struct {
	root string

	mu sync.Mutex
}

// NewStore creates a file checkpoint store rooted at the given directory.
// A "file://" prefix on root is accepted and stripped.
func NewStore(root string) *Store {
	return &Store{root: strings.Replace(root, "file://", "", 1)}
}

func (s *Store) dir() string {
	return filepath.Join(s.root, "checkpoints")
}

func (s *Store) path(planID string) string {
	return filepath.Join(s.dir(), planID+".json")
}

// Save appends one task outcome to the plan's checkpoint document. An existing
// record for the same task is overwritten.
func (s *Store) Save(_ context.Context, planID, taskID string, result models.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	cp, err := s.read(planID)
	if err != nil {
		return err
	}

	record := models.CheckpointRecord{
		TaskID:    taskID,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}

	replaced := false

	for i, existing := range cp.Records {
		if existing.TaskID == taskID {
			cp.Records[i] = record
			replaced = true

			break
		}
	}

	if !replaced {
		cp.Records = append(cp.Records, record)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint for plan %s: %w", planID, err)
	}

	if err := os.WriteFile(s.path(planID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint for plan %s: %w", planID, err)
	}

	return nil
}

// Load returns the checkpoint for a plan, empty when none has been written.
func (s *Store) Load(_ context.Context, planID string) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(planID)
}

// Clear removes the plan's checkpoint document.
func (s *Store) Clear(_ context.Context, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(planID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear checkpoint for plan %s: %w", planID, err)
	}

	return nil
}

// HealthCheck verifies the root directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file storage there is nothing to
// clean up.
func (s *Store) Close(_ context.Context) error {
	return nil
}

func (s *Store) read(planID string) (*models.Checkpoint, error) {
	data, err := os.ReadFile(s.path(planID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &models.Checkpoint{PlanID: planID}, nil
		}

		return nil, fmt.Errorf("failed to read checkpoint for plan %s: %w", planID, err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint for plan %s: %w", planID, err)
	}

	return &cp, nil
}

var _ checkpoint.Store = (*Store)(nil)
