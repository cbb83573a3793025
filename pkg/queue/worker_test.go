package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testgenai/testgen/pkg/config"
	"github.com/testgenai/testgen/pkg/models"
)

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount: 1, MaxConcurrentRequests: 5,
		PollInterval: 5 * time.Millisecond, PollIntervalJitter: 0,
		RequestTimeout: time.Second,
	}
}

func TestWorker_PollAndProcess_ClaimsAndRuns(t *testing.T) {
	requests := newFakeRequestStore(&models.Request{ID: "r1"})
	starter := &fakeStarter{}
	pool := &WorkerPool{requests: requests, config: testQueueConfig()}
	w := NewWorker("worker-0", requests, starter, pool, testQueueConfig())

	err := w.pollAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, starter.startedIDs())

	health := w.Health()
	assert.Equal(t, WorkerStatusIdle, health.Status)
	assert.Equal(t, 1, health.RequestsProcessed)
}

func TestWorker_PollAndProcess_NoRequestsAvailable(t *testing.T) {
	requests := newFakeRequestStore()
	starter := &fakeStarter{}
	pool := &WorkerPool{requests: requests, config: testQueueConfig()}
	w := NewWorker("worker-0", requests, starter, pool, testQueueConfig())

	err := w.pollAndProcess(context.Background())
	assert.ErrorIs(t, err, ErrNoRequestsAvailable)
	assert.Empty(t, starter.startedIDs())
}

func TestWorker_PollAndProcess_AtCapacity(t *testing.T) {
	requests := newFakeRequestStore(&models.Request{ID: "r1"})
	starter := &fakeStarter{}
	cfg := testQueueConfig()
	cfg.MaxConcurrentRequests = 1
	pool := &WorkerPool{requests: requests, config: cfg}
	pool.incrementActive()
	w := NewWorker("worker-0", requests, starter, pool, cfg)

	err := w.pollAndProcess(context.Background())
	assert.ErrorIs(t, err, ErrAtCapacity)
	assert.Empty(t, starter.startedIDs())
}

func TestWorker_PollAndProcess_TracksActiveCountAcrossRun(t *testing.T) {
	requests := newFakeRequestStore(&models.Request{ID: "r1"})
	block := make(chan struct{})
	starter := &fakeStarter{blockCh: block}
	pool := &WorkerPool{requests: requests, config: testQueueConfig()}
	w := NewWorker("worker-0", requests, starter, pool, testQueueConfig())

	done := make(chan error, 1)
	go func() { done <- w.pollAndProcess(context.Background()) }()

	require.Eventually(t, func() bool { return pool.ActiveCount() == 1 }, time.Second, time.Millisecond)
	close(block)
	require.NoError(t, <-done)
	assert.Equal(t, 0, pool.ActiveCount())
}

func TestWorker_StartStop_RunsPollLoopAndStopsCleanly(t *testing.T) {
	requests := newFakeRequestStore(&models.Request{ID: "r1"}, &models.Request{ID: "r2"})
	starter := &fakeStarter{}
	pool := &WorkerPool{requests: requests, config: testQueueConfig()}
	w := NewWorker("worker-0", requests, starter, pool, testQueueConfig())

	ctx := context.Background()
	w.Start(ctx)
	require.Eventually(t, func() bool { return len(starter.startedIDs()) == 2 }, time.Second, time.Millisecond)
	w.Stop()
}
