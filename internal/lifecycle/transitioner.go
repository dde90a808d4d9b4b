// Package lifecycle advances packages that have sat in processing past the
// configured timeout. The transitioner holds no state between runs; the
// server-side conditional update is the only defense against racing with a
// manual transition.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parcelpoint/parcelpoint-sync/pkg/enums"
	pkgerrors "github.com/parcelpoint/parcelpoint-sync/pkg/errors"
	"github.com/parcelpoint/parcelpoint-sync/pkg/logger"
	"github.com/parcelpoint/parcelpoint-sync/pkg/models"
	"github.com/parcelpoint/parcelpoint-sync/pkg/remote"
)

const table = "packages"

// TransitionerParams configure the transitioner.
type TransitionerParams struct {
	Remote remote.Store
	Logger *logger.Logger
	Retry  pkgerrors.RetryOptions
}

// Transitioner drives the processing→shipped timeout transition.
type Transitioner struct {
	remote remote.Store
	logg   *logger.Logger
	retry  pkgerrors.RetryOptions
}

// NewTransitioner wires the transitioner dependencies.
func NewTransitioner(params TransitionerParams) (*Transitioner, error) {
	if params.Remote == nil {
		return nil, fmt.Errorf("remote store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Transitioner{
		remote: params.Remote,
		logg:   params.Logger,
		retry:  params.Retry,
	}, nil
}

// ItemError records one package the sweep could not advance.
type ItemError struct {
	PackageID uuid.UUID `json:"packageId"`
	Message   string    `json:"message"`
}

// SweepResult summarizes one sweep cycle. Skipped counts packages whose
// conditional update found them no longer in processing, i.e. a harmless
// lost race.
type SweepResult struct {
	Checked int         `json:"checked"`
	Moved   int         `json:"moved"`
	Skipped int         `json:"skipped"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// Sweep finds every package stuck in processing since before now-timeout and
// conditionally advances it to shipped. One bad record never aborts the
// sweep; per-item failures are collected and the loop continues. Running the
// sweep twice moves each package at most once because the equality guard
// fails on the second pass.
func (t *Transitioner) Sweep(ctx context.Context, now time.Time, timeout time.Duration) (*SweepResult, error) {
	candidates, err := t.queryProcessing(ctx, &now, timeout)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Checked: len(candidates)}
	for _, candidate := range candidates {
		itemCtx := t.logg.WithPackageID(ctx, candidate.ID.String())
		if err := t.advance(ctx, candidate.ID, now); err != nil {
			classified := pkgerrors.Classify(err)
			if classified.Kind() == pkgerrors.KindNotFound {
				result.Skipped++
				t.logg.Debug(itemCtx, "package no longer processing; skipped")
				continue
			}
			result.Errors = append(result.Errors, ItemError{
				PackageID: candidate.ID,
				Message:   classified.Message(),
			})
			t.logg.Error(itemCtx, "failed to advance package", classified)
			continue
		}
		result.Moved++
	}
	return result, nil
}

func (t *Transitioner) advance(ctx context.Context, packageID uuid.UUID, now time.Time) error {
	patch := map[string]any{
		"status":     string(enums.PackageStatusShipped),
		"shipped_at": now.UTC(),
		"updated_at": now.UTC(),
	}
	cond := &remote.Condition{Field: "status", Equals: string(enums.PackageStatusProcessing)}
	_, err := pkgerrors.Retry(ctx, t.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.remote.Update(ctx, table, packageID, patch, cond, nil)
	})
	return err
}

// PackageTiming describes one processing package's position relative to the
// sweep timeout.
type PackageTiming struct {
	PackageID    uuid.UUID     `json:"packageId"`
	TrackingCode string        `json:"trackingCode"`
	Elapsed      time.Duration `json:"elapsed"`
	Remaining    time.Duration `json:"remaining"`
	Eligible     bool          `json:"eligible"`
}

// StatusReport computes, for every currently-processing package, how long it
// has been processing and how long until the sweep would move it. Read-only.
func (t *Transitioner) StatusReport(ctx context.Context, now time.Time, timeout time.Duration) ([]PackageTiming, error) {
	processing, err := t.queryProcessing(ctx, nil, timeout)
	if err != nil {
		return nil, err
	}

	report := make([]PackageTiming, 0, len(processing))
	for _, p := range processing {
		timing := PackageTiming{
			PackageID:    p.ID,
			TrackingCode: p.TrackingCode,
		}
		if p.ProcessedAt != nil {
			timing.Elapsed = now.Sub(*p.ProcessedAt)
		}
		timing.Remaining = timeout - timing.Elapsed
		if timing.Remaining < 0 {
			timing.Remaining = 0
		}
		timing.Eligible = timing.Elapsed >= timeout
		report = append(report, timing)
	}
	return report, nil
}

// queryProcessing lists processing packages, bounded to those processed
// before now-timeout when cutoffFrom is non-nil.
func (t *Transitioner) queryProcessing(ctx context.Context, cutoffFrom *time.Time, timeout time.Duration) ([]models.Package, error) {
	filter := remote.Filter{"status": remote.Eq(string(enums.PackageStatusProcessing))}
	if cutoffFrom != nil {
		filter["processed_at"] = remote.Lt(cutoffFrom.Add(-timeout))
	}
	return pkgerrors.Retry(ctx, t.retry, func(ctx context.Context) ([]models.Package, error) {
		var rows []models.Package
		if err := t.remote.Query(ctx, table, filter, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	})
}
