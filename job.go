/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package robo32

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neoproj/robo32/internal/apierror"
	redlock "github.com/neoproj/robo32/internal/lock"
	"github.com/neoproj/robo32/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	admissionLockKey = "robo32:admission"
	admissionLockTTL = 15 * time.Second
)

// AdmitJob creates a PROCESSING job, failing with ErrJobAlreadyActive while another job is
// processing. The audit store enforces the rule; the Redis lock only turns concurrent
// submissions away early.
func (r *Robo32) AdmitJob(ctx context.Context, req model.JobRequest) (int64, error) {
	ctx, span := otel.Tracer("robo32.job").Start(ctx, "AdmitJob")
	defer span.End()

	if r.redis != nil {
		locker := redlock.NewLocker(r.redis, admissionLockKey, model.GenerateUUIDWithSuffix("admission"))
		err := locker.Lock(ctx, admissionLockTTL)
		switch {
		case errors.Is(err, redlock.ErrLockHeld):
			r.metrics.RecordRejected()
			return 0, apierror.NewAPIError(apierror.ErrConflict, "Another submission is being admitted", ErrJobAlreadyActive)
		case err != nil:
			logrus.Warnf("admission lock unavailable, relying on the audit store: %v", err)
		default:
			defer func() {
				if err := locker.Unlock(context.WithoutCancel(ctx)); err != nil {
					logrus.Debugf("admission lock release: %v", err)
				}
			}()
		}
	}

	job, err := r.datasource.CreateJob(ctx, &model.Job{
		Filename:   req.Filename,
		UploadedBy: req.UploadedBy,
		TotalRows:  req.TotalRows,
	})
	if err != nil {
		if errors.Is(err, ErrJobAlreadyActive) {
			r.metrics.RecordRejected()
		}
		span.RecordError(err)
		return 0, err
	}

	r.metrics.RecordAdmitted()
	span.SetAttributes(attribute.Int64("job.id", job.ID))
	logrus.Infof("job %d admitted: %s with %d row(s) from %s", job.ID, job.Filename, job.TotalRows, job.UploadedBy)
	return job.ID, nil
}

// StartJob runs an admitted job without waiting for it. With the queue enabled the run is handed
// to the workers; otherwise it runs on a goroutine tracked by Wait and interrupted by Close.
func (r *Robo32) StartJob(ctx context.Context, jobID int64, rows []model.Row, mapping model.Mapping, submitter string) error {
	if r.queue != nil {
		err := r.queue.enqueueRun(ctx, RunJobPayload{JobID: jobID, Rows: rows, Mapping: mapping, Submitter: submitter})
		if err != nil {
			// Nobody will ever run it.
			r.finalize(ctx, jobID, model.JobStatusFailed, err)
			return fmt.Errorf("failed to enqueue job %d: %w", jobID, err)
		}
		return nil
	}

	r.runs.Add(1)
	go func() {
		defer r.runs.Done()
		if err := r.Run(r.runCtx, jobID, rows, mapping, submitter); err != nil {
			logrus.Errorf("job %d failed: %v", jobID, err)
		}
	}()
	return nil
}

// CancelJob forces a PROCESSING job to FAILED. It reports false when the job had already
// finished. A run still in progress is not interrupted; its own finalize becomes a no-op.
func (r *Robo32) CancelJob(ctx context.Context, jobID int64) (bool, error) {
	ctx, span := otel.Tracer("robo32.job").Start(ctx, "CancelJob")
	defer span.End()
	span.SetAttributes(attribute.Int64("job.id", jobID))

	changed, err := r.datasource.FinalizeJob(ctx, jobID, model.JobStatusFailed)
	if err != nil {
		return false, err
	}
	if !changed {
		// Unknown jobs surface as NOT_FOUND.
		if _, err := r.datasource.GetJob(ctx, jobID); err != nil {
			return false, err
		}
		logrus.Infof("job %d is not processing, cancel ignored", jobID)
		return false, nil
	}

	r.metrics.RecordFinalized(model.JobStatusFailed)
	if r.queue != nil {
		if err := r.queue.dropPendingRun(jobID); err != nil {
			logrus.Debugf("job %d: queued run not removed: %v", jobID, err)
		}
	}
	logrus.Warnf("job %d cancelled", jobID)
	return true, nil
}

// CancelStuckJobs fails every job still marked PROCESSING and returns the ones it changed.
func (r *Robo32) CancelStuckJobs(ctx context.Context) ([]model.Job, error) {
	jobs, err := r.datasource.GetProcessingJobs(ctx)
	if err != nil {
		return nil, err
	}

	cancelled := []model.Job{}
	for _, job := range jobs {
		changed, err := r.CancelJob(ctx, job.ID)
		if err != nil {
			return cancelled, err
		}
		if changed {
			job.Status = model.JobStatusFailed
			cancelled = append(cancelled, job)
		}
	}
	return cancelled, nil
}

// GetActiveJob returns the PROCESSING job, or nil.
func (r *Robo32) GetActiveJob(ctx context.Context) (*model.Job, error) {
	return r.datasource.GetActiveJob(ctx)
}

// GetRecentJobs lists the newest jobs. A non-positive limit uses the configured default.
func (r *Robo32) GetRecentJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = r.config.RecentJobsLimit
	}
	return r.datasource.GetRecentJobs(ctx, limit)
}

func (r *Robo32) SummarizeJob(ctx context.Context, jobID int64) (*model.JobSummary, error) {
	return r.datasource.GetJobSummary(ctx, jobID)
}

func (r *Robo32) ListJobErrors(ctx context.Context, jobID int64) ([]model.AuditRow, error) {
	return r.datasource.GetJobErrors(ctx, jobID)
}
