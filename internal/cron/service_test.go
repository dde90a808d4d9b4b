package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeLock struct {
	acquired atomic.Bool
	allow    bool
	err      error

	acquires atomic.Int64
	releases atomic.Int64
}

func (l *fakeLock) Acquire(ctx context.Context) (bool, error) {
	l.acquires.Add(1)
	if l.err != nil {
		return false, l.err
	}
	if l.allow {
		l.acquired.Store(true)
	}
	return l.allow, nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.releases.Add(1)
	l.acquired.Store(false)
	return nil
}

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestNewService_RequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{allow: true}}); err == nil {
		t.Fatal("expected error without logger")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without lock")
	}
}

func TestRun_FirstCycleFiresImmediately(t *testing.T) {
	lock := &fakeLock{allow: true}
	job := &countingJob{name: "package-sweep"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for job.runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first cycle never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}

	if job.runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1 before the first tick", job.runs.Load())
	}
	if lock.releases.Load() != 1 {
		t.Fatalf("releases = %d, want 1", lock.releases.Load())
	}
}

func TestRunCycle_SkipsWhenLockHeldElsewhere(t *testing.T) {
	lock := &fakeLock{allow: false}
	job := &countingJob{name: "package-sweep"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs.Load() != 0 {
		t.Fatal("job ran without the lock")
	}
	if lock.releases.Load() != 0 {
		t.Fatal("released a lock that was never acquired")
	}
}

func TestRunCycle_LockErrorSurfaces(t *testing.T) {
	lock := &fakeLock{err: errors.New("redis down")}
	service, err := NewService(ServiceParams{Logger: testLogger(), Lock: lock})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := service.runCycle(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestRunCycle_FailingJobDoesNotStopOthers(t *testing.T) {
	lock := &fakeLock{allow: true}
	failing := &countingJob{name: "first", err: errors.New("boom")}
	healthy := &countingJob{name: "second"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(failing, healthy),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if failing.runs.Load() != 1 || healthy.runs.Load() != 1 {
		t.Fatalf("runs = %d/%d", failing.runs.Load(), healthy.runs.Load())
	}
	if lock.releases.Load() != 1 {
		t.Fatalf("releases = %d", lock.releases.Load())
	}
}
