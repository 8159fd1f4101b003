package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/models"
	"memoryd/internal/providers"
	"memoryd/internal/structures"
	"memoryd/internal/testutil"
)

func newTestDispatcher(workers, queue, attempts int) (*Dispatcher, *testutil.MockMetrics, *testutil.MockLogger) {
	conf := &structures.Config{Learning: structures.LearningConfig{
		Workers:        workers,
		QueueSize:      queue,
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		TaskTimeout:    time.Second,
	}}
	metrics := testutil.NewMockMetrics()
	logger := &testutil.MockLogger{}
	return NewDispatcher(conf, logger, metrics), metrics, logger
}

func TestTasksOfOnePairRunInOrder(t *testing.T) {
	d, metrics, _ := newTestDispatcher(4, 256, 1)
	d.Start()

	var (
		mu    sync.Mutex
		order = map[models.PairKey][]int{}
	)
	keys := []models.PairKey{models.NewPairKey("f1", "c1"), models.NewPairKey("f2", "c1"), models.NewPairKey("f1", "c2")}
	for i := 0; i < 30; i++ {
		key, i := keys[i%len(keys)], i
		require.NoError(t, d.Submit(Task{Name: "learn", Key: key, Run: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order[key] = append(order[key], i)
			return nil
		}}))
	}

	require.NoError(t, d.Stop(context.Background()))
	for _, key := range keys {
		seq := order[key]
		require.Len(t, seq, 10)
		for j := 1; j < len(seq); j++ {
			assert.Less(t, seq[j-1], seq[j])
		}
	}
	assert.Equal(t, 30, metrics.TaskResult("learn", ResultSuccess))
	assert.Zero(t, d.Depth())
}

func TestTransientFailuresAreRetried(t *testing.T) {
	d, metrics, logger := newTestDispatcher(1, 8, 5)
	d.Start()

	var calls atomic.Int32
	require.NoError(t, d.Submit(Task{Name: "calibrate", Key: models.NewPairKey("f1", "c1"), Run: func(context.Context) error {
		if calls.Add(1) < 3 {
			return models.ErrStoreUnavailable
		}
		return nil
	}}))

	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, metrics.TaskResult("calibrate", ResultRetried))
	assert.Equal(t, 2, logger.Count("warn", providers.TypeLearning))
}

func TestPermanentFailuresAreNotRetried(t *testing.T) {
	d, metrics, logger := newTestDispatcher(1, 8, 5)
	d.Start()

	var calls atomic.Int32
	require.NoError(t, d.Submit(Task{Name: "calibrate", Key: models.NewPairKey("f1", "c1"), Run: func(context.Context) error {
		calls.Add(1)
		return fmt.Errorf("%w: no fan messages", models.ErrCalibrationFailed)
	}}))

	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, metrics.TaskResult("calibrate", ResultFailed))
	assert.Equal(t, 1, logger.Count("error", providers.TypeLearning))
}

func TestFailuresAreLoggedAfterMaxAttempts(t *testing.T) {
	d, metrics, logger := newTestDispatcher(1, 8, 3)
	d.Start()

	var calls atomic.Int32
	require.NoError(t, d.Submit(Task{Name: "emotion", Key: models.NewPairKey("f1", "c1"), Run: func(context.Context) error {
		calls.Add(1)
		return errors.New("boom")
	}}))

	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, metrics.TaskResult("emotion", ResultFailed))
	assert.Equal(t, 1, logger.Count("error", providers.TypeLearning))
}

func TestSubmitRejectsWhenFull(t *testing.T) {
	d, metrics, _ := newTestDispatcher(1, 2, 1)
	noop := func(context.Context) error { return nil }
	key := models.NewPairKey("f1", "c1")

	require.NoError(t, d.Submit(Task{Name: "learn", Key: key, Run: noop}))
	require.NoError(t, d.Submit(Task{Name: "learn", Key: key, Run: noop}))
	assert.ErrorIs(t, d.Submit(Task{Name: "learn", Key: key, Run: noop}), ErrQueueFull)
	assert.Equal(t, 2, d.Depth())
	assert.Equal(t, 1, metrics.TaskResult("learn", ResultDropped))

	d.Start()
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, 2, metrics.TaskResult("learn", ResultSuccess))
	assert.ErrorIs(t, d.Submit(Task{Name: "learn", Key: key, Run: noop}), ErrStopped)
}

func TestStopAbandonsWorkAfterDeadline(t *testing.T) {
	d, _, logger := newTestDispatcher(1, 8, 1)
	d.Start()

	started := make(chan struct{})
	var sawCancel atomic.Bool
	key := models.NewPairKey("f1", "c1")
	require.NoError(t, d.Submit(Task{Name: "slow", Key: key, Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}}))
	require.NoError(t, d.Submit(Task{Name: "queued", Key: key, Run: func(context.Context) error { return nil }}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)
	assert.True(t, sawCancel.Load())
	assert.Equal(t, 1, logger.Count("warn", providers.TypeLearning))
}
