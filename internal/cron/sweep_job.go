package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/parcelpoint/parcelpoint-sync/internal/lifecycle"
	"github.com/parcelpoint/parcelpoint-sync/pkg/logger"
	"github.com/parcelpoint/parcelpoint-sync/pkg/metrics"
)

const defaultProcessingTimeout = 48 * time.Hour

type sweeper interface {
	Sweep(ctx context.Context, now time.Time, timeout time.Duration) (*lifecycle.SweepResult, error)
}

// SweepJobParams configure the package sweep job.
type SweepJobParams struct {
	Logger       *logger.Logger
	Transitioner sweeper
	Metrics      *metrics.SweepMetrics
	Timeout      time.Duration
}

// NewSweepJob builds the job that advances timed-out processing packages.
func NewSweepJob(params SweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Transitioner == nil {
		return nil, fmt.Errorf("transitioner required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}
	return &sweepJob{
		logg:         params.Logger,
		transitioner: params.Transitioner,
		metrics:      params.Metrics,
		timeout:      timeout,
		now:          time.Now,
	}, nil
}

type sweepJob struct {
	logg         *logger.Logger
	transitioner sweeper
	metrics      *metrics.SweepMetrics
	timeout      time.Duration
	now          func() time.Time
}

func (j *sweepJob) Name() string { return "package-sweep" }

func (j *sweepJob) Run(ctx context.Context) error {
	result, err := j.transitioner.Sweep(ctx, j.now().UTC(), j.timeout)
	if err != nil {
		return fmt.Errorf("sweep processing packages: %w", err)
	}

	j.metrics.AddMoved(j.Name(), result.Moved)
	j.metrics.AddItemFailures(j.Name(), len(result.Errors))

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked": result.Checked,
		"moved":   result.Moved,
		"skipped": result.Skipped,
		"failed":  len(result.Errors),
	})
	if len(result.Errors) > 0 {
		j.logg.Warn(logCtx, "sweep finished with per-package failures")
		return nil
	}
	j.logg.Info(logCtx, "sweep finished")
	return nil
}
