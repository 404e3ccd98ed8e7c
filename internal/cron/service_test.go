package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stocktake-backend/pkg/logger"
	"github.com/angelmondragon/stocktake-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	f.acquires++
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

type panickingJob struct{}

func (panickingJob) Name() string { return "panics" }

func (panickingJob) Run(context.Context) error { panic("nil map") }

type deadlineJob struct{ sawDeadline bool }

func (j *deadlineJob) Name() string { return "deadline" }

func (j *deadlineJob) Run(ctx context.Context) error {
	_, j.sawDeadline = ctx.Deadline()
	return nil
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "maintenance-test"}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return svc
}

func TestRunOnceRunsEveryJobDespiteFailures(t *testing.T) {
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("boom")}
	after := &countingJob{name: "after"}
	lock := &fakeLock{}

	err := newTestService(t, lock, ok, bad, after).RunOnce(context.Background())
	require.ErrorContains(t, err, "bad: boom")

	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, bad.runs)
	require.Equal(t, 1, after.runs)
	require.Equal(t, 1, lock.releases)
	require.False(t, lock.held)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "job"}
	lock := &fakeLock{held: true}

	require.NoError(t, newTestService(t, lock, job).RunOnce(context.Background()))
	require.Zero(t, job.runs)
	require.Zero(t, lock.releases)
}

func TestRunOnceSurfacesLockErrors(t *testing.T) {
	job := &countingJob{name: "job"}
	err := newTestService(t, &fakeLock{err: errors.New("redis down")}, job).RunOnce(context.Background())
	require.ErrorContains(t, err, "lock acquire")
	require.Zero(t, job.runs)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "job"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestService(t, &fakeLock{}, job).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, job.runs)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "x"})})
	require.Error(t, err)
}

func TestRunOnceRecoversPanickingJob(t *testing.T) {
	after := &countingJob{name: "after"}
	lock := &fakeLock{}

	err := newTestService(t, lock, panickingJob{}, after).RunOnce(context.Background())
	require.ErrorContains(t, err, "panics: panic: nil map")
	require.Equal(t, 1, after.runs)
	require.False(t, lock.held)
}

func TestRunOnceAppliesJobTimeout(t *testing.T) {
	job := &deadlineJob{}
	registry, err := NewRegistry(job)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "maintenance-test"}),
		Registry:   registry,
		Lock:       &fakeLock{},
		JobTimeout: time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, svc.RunOnce(context.Background()))
	require.True(t, job.sawDeadline)
}
