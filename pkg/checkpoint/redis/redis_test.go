package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforge/planforge/pkg/models"
)

func TestNewStoreRejectsInvalidURL(t *testing.T) {
	_, err := NewStore(context.Background(), "not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

func TestKeyUsesPlanID(t *testing.T) {
	assert.Equal(t, "planforge:checkpoint:plan-abcd1234", key("plan-abcd1234"))
}

func TestSortRecordsByTimestamp(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	records := []models.CheckpointRecord{
		{TaskID: "task_3", Timestamp: base.Add(2 * time.Minute)},
		{TaskID: "task_1", Timestamp: base},
		{TaskID: "task_2", Timestamp: base.Add(time.Minute)},
	}

	sortRecords(records)

	assert.Equal(t, "task_1", records[0].TaskID)
	assert.Equal(t, "task_2", records[1].TaskID)
	assert.Equal(t, "task_3", records[2].TaskID)
}
