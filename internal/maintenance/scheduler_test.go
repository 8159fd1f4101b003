package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/providers"
	"memoryd/internal/structures"
	"memoryd/internal/testutil"
)

type fakeTarget struct {
	mu          sync.Mutex
	cutoffs     []time.Time
	sweeps      int
	refreshed   []time.Time
	drained     int
	depth       int
	sweepErr    error
	drainErr    error
	pendingDone int
}

func (f *fakeTarget) CleanupOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, nil
}

func (f *fakeTarget) CompletePendingErasures(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return f.pendingDone, f.sweepErr
}

func (f *fakeTarget) RefreshEngagement(_ context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, since)
	return 2, nil
}

func (f *fakeTarget) QueueDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.depth
}

func (f *fakeTarget) Drain(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drained++
	return f.drainErr
}

func (f *fakeTarget) sweepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

func schedulerConfig() *structures.Config {
	return &structures.Config{
		Retention:  structures.RetentionConfig{MaxAge: 90 * 24 * time.Hour, Schedule: "0 30 3 * * *"},
		Erasure:    structures.ErasureConfig{Deadline: 72 * time.Hour, SweepInterval: time.Second},
		Engagement: structures.EngagementConfig{RefreshSchedule: "0 0 * * * *", ActiveWindow: 48 * time.Hour},
		Metrics:    structures.MetricsConfig{Enabled: true, SampleInterval: time.Second},
	}
}

func newTestScheduler(conf *structures.Config, target *fakeTarget) (*Scheduler, *testutil.MockLogger, *testutil.MockMetrics) {
	logger := &testutil.MockLogger{}
	metrics := testutil.NewMockMetrics()
	s := NewScheduler(conf, logger, metrics, target).(*Scheduler)
	return s, logger, metrics
}

func TestSchedulerRunsIntervalJobs(t *testing.T) {
	target := &fakeTarget{depth: 7}
	s, _, metrics := newTestScheduler(schedulerConfig(), target)

	require.NoError(t, s.Init())
	defer s.Stop()

	assert.Eventually(t, func() bool { return target.sweepCount() > 0 }, 3*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool { return metrics.CurrentQueueDepth() == 7 }, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerRejectsInvalidSpecs(t *testing.T) {
	conf := schedulerConfig()
	conf.Retention.Schedule = "every tuesday"
	s, _, _ := newTestScheduler(conf, &fakeTarget{})
	assert.Error(t, s.Init())

	conf = schedulerConfig()
	conf.Engagement.RefreshSchedule = "* * *"
	s, _, _ = newTestScheduler(conf, &fakeTarget{})
	assert.Error(t, s.Init())
}

func TestRetentionAndRefreshUseWindows(t *testing.T) {
	now := time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC)
	target := &fakeTarget{}
	s, logger, _ := newTestScheduler(schedulerConfig(), target)
	s.now = func() time.Time { return now }

	s.runJob("retention", s.retention)
	s.runJob("engagement refresh", s.refreshEngagement)

	require.Len(t, target.cutoffs, 1)
	assert.Equal(t, now.Add(-90*24*time.Hour), target.cutoffs[0])
	require.Len(t, target.refreshed, 1)
	assert.Equal(t, now.Add(-48*time.Hour), target.refreshed[0])
	assert.Equal(t, 2, logger.Count("info", providers.TypeApp))
}

func TestFailedJobsAreLogged(t *testing.T) {
	target := &fakeTarget{sweepErr: errors.New("store unavailable")}
	s, logger, _ := newTestScheduler(schedulerConfig(), target)

	s.runJob("erasure sweep", s.sweepErasures)
	assert.Equal(t, 1, logger.Count("error", providers.TypeApp))
	assert.Error(t, s.Restore())
}

func TestRestoreCompletesPendingErasures(t *testing.T) {
	target := &fakeTarget{pendingDone: 2}
	s, logger, _ := newTestScheduler(schedulerConfig(), target)

	require.NoError(t, s.Restore())
	assert.Equal(t, 1, target.sweepCount())
	assert.Equal(t, 1, logger.Count("info", providers.TypeAudit))
}

func TestPersistDrainsTasks(t *testing.T) {
	target := &fakeTarget{}
	s, logger, _ := newTestScheduler(schedulerConfig(), target)
	require.NoError(t, s.Persist())
	assert.Equal(t, 1, target.drained)

	target.drainErr = context.DeadlineExceeded
	assert.ErrorIs(t, s.Persist(), context.DeadlineExceeded)
	assert.Equal(t, 1, logger.Count("error", providers.TypeApp))
}
