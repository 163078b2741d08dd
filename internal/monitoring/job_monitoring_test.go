package monitoring

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJobManager(t *testing.T, stalled time.Duration) (*JobStatusManager, *prometheus.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	metrics := NewBackgroundJobMetrics()
	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)
	return NewJobStatusManager(ctx, setupTestLogger(), metrics, stalled), registry
}

func TestJobStatusManager_RegisterJob(t *testing.T) {
	jsm, _ := newTestJobManager(t, time.Minute)

	jsm.RegisterJob("payment_sweep")
	first, exists := jsm.GetJobStatus("payment_sweep")
	require.True(t, exists)
	assert.Equal(t, JobStatusPending, first.Status)
	assert.NotNil(t, first.Metadata)

	// registering again keeps the original record
	jsm.RegisterJob("payment_sweep")
	second, _ := jsm.GetJobStatus("payment_sweep")
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	_, exists = jsm.GetJobStatus("unknown")
	assert.False(t, exists)
}

func TestJobStatusManager_CompleteJob(t *testing.T) {
	jsm, registry := newTestJobManager(t, time.Minute)
	jsm.RegisterJob("payment_sweep")

	jsm.StartJob("payment_sweep")
	jsm.CompleteJob("payment_sweep", errors.New("database is down"), nil)

	jsm.StartJob("payment_sweep")
	jsm.CompleteJob("payment_sweep", errors.New("rpc unavailable"), nil)

	status, _ := jsm.GetJobStatus("payment_sweep")
	assert.Equal(t, JobStatusFailed, status.Status)
	assert.Equal(t, int64(2), status.FailureCount)
	assert.Equal(t, int64(2), status.ConsecutiveFailures)
	assert.Equal(t, "rpc unavailable", status.LastError)
	assert.Equal(t, "database", status.Metadata["error_type"])

	jsm.StartJob("payment_sweep")
	jsm.CompleteJob("payment_sweep", nil, map[string]interface{}{"confirmed": 3})

	status, _ = jsm.GetJobStatus("payment_sweep")
	assert.Equal(t, JobStatusSuccess, status.Status)
	assert.Equal(t, int64(1), status.SuccessCount)
	assert.Equal(t, int64(0), status.ConsecutiveFailures)
	assert.Empty(t, status.LastError)
	assert.Equal(t, 3, status.Metadata["confirmed"])
	assert.NotContains(t, status.Metadata, "error_type")

	families := gatherFamilies(t, registry)
	runs := families["paywall_background_job_runs_total"]
	require.NotNil(t, runs)
	byStatus := map[string]float64{}
	for _, m := range runs.GetMetric() {
		byStatus[getLabelValue(m, "status")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, float64(2), byStatus["error"])
	assert.Equal(t, float64(1), byStatus["success"])
	assert.Equal(t, float64(0), families["paywall_background_jobs_active"].GetMetric()[0].GetGauge().GetValue())
}

func TestJobStatusManager_CompleteUnregisteredJob(t *testing.T) {
	jsm, _ := newTestJobManager(t, time.Minute)

	jsm.CompleteJob("ghost", nil, nil)

	_, exists := jsm.GetJobStatus("ghost")
	assert.False(t, exists)
}

func TestJobStatusManager_StalledJobDetection(t *testing.T) {
	jsm, registry := newTestJobManager(t, 10*time.Millisecond)

	jsm.StartJob("payment_sweep")
	time.Sleep(20 * time.Millisecond)

	// reads report the stall before the detector runs
	status, _ := jsm.GetJobStatus("payment_sweep")
	assert.Equal(t, JobStatusStalled, status.Status)

	jsm.detectStalledJobs()
	assert.Equal(t, 1, jsm.GetJobsSummary().StalledJobs)

	stalled := gatherFamilies(t, registry)["paywall_background_jobs_stalled"]
	require.NotNil(t, stalled)
	assert.Equal(t, float64(1), stalled.GetMetric()[0].GetGauge().GetValue())
}

func TestJobStatusManager_GetJobsSummary(t *testing.T) {
	jsm, _ := newTestJobManager(t, time.Minute)

	jsm.RegisterJob("idle")
	jsm.StartJob("ok")
	jsm.CompleteJob("ok", nil, nil)
	jsm.StartJob("broken")
	jsm.CompleteJob("broken", errors.New("boom"), nil)
	jsm.StartJob("busy")

	summary := jsm.GetJobsSummary()
	assert.Equal(t, 4, summary.TotalJobs)
	assert.Equal(t, 2, summary.HealthyJobs)
	assert.Equal(t, 1, summary.UnhealthyJobs)
	assert.Equal(t, 1, summary.RunningJobs)
	assert.Equal(t, 0, summary.StalledJobs)
}

func TestJobStatusManager_ConcurrentAccess(t *testing.T) {
	jsm, _ := newTestJobManager(t, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "job_" + string(rune('a'+i%4))
			jsm.StartJob(name)
			_ = jsm.GetAllJobStatuses()
			var err error
			if i%2 == 0 {
				err = errors.New("fail")
			}
			jsm.CompleteJob(name, err, map[string]interface{}{"i": i})
		}(i)
	}
	wg.Wait()

	var total int64
	for _, s := range jsm.GetAllJobStatuses() {
		total += s.SuccessCount + s.FailureCount
	}
	assert.Equal(t, int64(20), total)
}

func TestInstrumentedJob_Execute(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		jsm, _ := newTestJobManager(t, time.Minute)
		var sawDeadline bool
		job := NewInstrumentedJob("sweep", func(ctx context.Context) error {
			_, sawDeadline = ctx.Deadline()
			return nil
		}, jsm, setupTestLogger(), time.Second)

		job.Execute(context.Background())

		status, _ := jsm.GetJobStatus("sweep")
		assert.Equal(t, JobStatusSuccess, status.Status)
		assert.True(t, sawDeadline)
	})

	t.Run("failure", func(t *testing.T) {
		jsm, _ := newTestJobManager(t, time.Minute)
		job := NewInstrumentedJob("sweep", func(ctx context.Context) error {
			return errors.New("connection refused")
		}, jsm, setupTestLogger(), time.Second)

		job.Run()

		status, _ := jsm.GetJobStatus("sweep")
		assert.Equal(t, JobStatusFailed, status.Status)
		assert.Equal(t, "network", status.Metadata["error_type"])
	})

	t.Run("timeout", func(t *testing.T) {
		jsm, registry := newTestJobManager(t, time.Minute)
		job := NewInstrumentedJob("sweep", func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return ctx.Err()
		}, jsm, setupTestLogger(), 10*time.Millisecond)

		job.Execute(context.Background())

		status, _ := jsm.GetJobStatus("sweep")
		assert.Equal(t, JobStatusFailed, status.Status)
		assert.Equal(t, "timeout", status.Metadata["error_type"])
		assert.Contains(t, status.LastError, "job timeout")

		timeouts := gatherFamilies(t, registry)["paywall_job_timeouts_total"]
		require.NotNil(t, timeouts)
		assert.Equal(t, float64(1), timeouts.GetMetric()[0].GetCounter().GetValue())
	})

	t.Run("panic", func(t *testing.T) {
		jsm, _ := newTestJobManager(t, time.Minute)
		job := NewInstrumentedJob("sweep", func(ctx context.Context) error {
			panic("nil map")
		}, jsm, setupTestLogger(), time.Second)

		assert.NotPanics(t, func() { job.Execute(context.Background()) })

		status, _ := jsm.GetJobStatus("sweep")
		assert.Equal(t, JobStatusFailed, status.Status)
		assert.Equal(t, "panic", status.Metadata["error_type"])
		assert.Contains(t, status.Metadata, "stack_trace")
	})

	t.Run("overlapping tick is skipped", func(t *testing.T) {
		jsm, _ := newTestJobManager(t, time.Minute)
		release := make(chan struct{})
		started := make(chan struct{})
		job := NewInstrumentedJob("sweep", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		}, jsm, setupTestLogger(), time.Second)

		done := make(chan struct{})
		go func() {
			job.Execute(context.Background())
			close(done)
		}()
		<-started
		job.Execute(context.Background())
		close(release)
		<-done

		status, _ := jsm.GetJobStatus("sweep")
		assert.Equal(t, int64(1), status.SuccessCount)
	})

	t.Run("tick after a timeout waits for the run to return", func(t *testing.T) {
		jsm, _ := newTestJobManager(t, time.Minute)
		release := make(chan struct{})
		var calls atomic.Int32
		job := NewInstrumentedJob("sweep", func(ctx context.Context) error {
			if calls.Add(1) == 1 {
				<-release
			}
			return nil
		}, jsm, setupTestLogger(), 10*time.Millisecond)

		job.Execute(context.Background())
		status, _ := jsm.GetJobStatus("sweep")
		assert.Equal(t, "timeout", status.Metadata["error_type"])

		// the first run ignores cancellation and is still going
		job.Execute(context.Background())
		assert.Equal(t, int32(1), calls.Load())

		close(release)
		assert.Eventually(t, func() bool {
			job.Execute(context.Background())
			return calls.Load() == 2
		}, time.Second, 10*time.Millisecond)
	})
}

func TestClassifyJobError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("context deadline exceeded"), "timeout"},
		{errors.New("sweep lock held by another replica"), "lock"},
		{errors.New("sql: no rows"), "database"},
		{errors.New("network is unreachable"), "network"},
		{errors.New("evm rpc failed"), "external_api"},
		{errors.New("something odd"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyJobError(tt.err))
	}
}
