package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testgenai/testgen/pkg/models"
)

func TestWorkerPool_DetectAndRecoverOrphans_MarksEachFailed(t *testing.T) {
	requests := newFakeRequestStore()
	requests.stale = []*models.Request{{ID: "r1"}, {ID: "r2"}}
	pool := &WorkerPool{requests: requests, config: testQueueConfig()}

	require.NoError(t, pool.detectAndRecoverOrphans(context.Background()))

	assert.ElementsMatch(t, []string{"r1", "r2"}, requests.updated)
	health := pool.Health()
	assert.Equal(t, 2, health.OrphansRecovered)
	assert.False(t, health.LastOrphanScan.IsZero())
}

func TestWorkerPool_DetectAndRecoverOrphans_NoOrphansStillRecordsScan(t *testing.T) {
	requests := newFakeRequestStore()
	pool := &WorkerPool{requests: requests, config: testQueueConfig()}

	require.NoError(t, pool.detectAndRecoverOrphans(context.Background()))

	assert.Empty(t, requests.updated)
	health := pool.Health()
	assert.Equal(t, 0, health.OrphansRecovered)
	assert.False(t, health.LastOrphanScan.IsZero())
}
