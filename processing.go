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

	"github.com/cenkalti/backoff/v4"
	"github.com/neoproj/robo32/internal/notification"
	oraconn "github.com/neoproj/robo32/internal/ora-conn"
	"github.com/neoproj/robo32/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const finalizeTimeout = 30 * time.Second

// Run processes every row of an admitted job and finalizes it: COMPLETED when the loop got
// through all rows, FAILED when the job was aborted before or during the loop. Row failures are
// recorded in the ledger and never abort the job.
func (r *Robo32) Run(ctx context.Context, jobID int64, rows []model.Row, mapping model.Mapping, submitter string) error {
	ctx, span := otel.Tracer("robo32.job").Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.Int64("job.id", jobID), attribute.Int("job.rows", len(rows)))

	r.metrics.RunStarted()
	defer r.metrics.RunFinished()

	err := r.processRows(ctx, jobID, rows, mapping, submitter)

	status := model.JobStatusCompleted
	if err != nil {
		status = model.JobStatusFailed
		span.RecordError(err)
	}
	r.finalize(ctx, jobID, status, err)
	return err
}

func (r *Robo32) processRows(ctx context.Context, jobID int64, rows []model.Row, mapping model.Mapping, submitter string) error {
	total := len(rows)
	logrus.Infof("[PROCESSING] job %d: starting %d row(s)", jobID, total)

	session, err := r.acquireSession(ctx)
	if err != nil {
		logrus.Errorf("[PROCESSING] job %d: %v", jobID, err)
		r.recordConnectionFailure(ctx, jobID, rows, mapping, submitter, err)
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logrus.Debugf("job %d: closing session: %v", jobID, err)
		}
	}()

	if err := r.guard.EnsureContext(ctx, session); err != nil {
		return fmt.Errorf("job %d: %w", jobID, err)
	}

	cloner := r.newCloner()
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("job %d interrupted before row %d of %d: %w", jobID, i+1, total, err)
		}
		r.processRow(ctx, session, cloner, jobID, i+1, total, row, mapping, submitter)
	}

	logrus.Infof("[PROCESSING] job %d: finished %d row(s)", jobID, total)
	return nil
}

// acquireSession retries the pool with backoff before declaring the primary store unavailable.
func (r *Robo32) acquireSession(ctx context.Context) (oraconn.Session, error) {
	var session oraconn.Session
	operation := func() error {
		s, err := r.pool.Acquire(ctx)
		if err != nil {
			logrus.Warnf("primary store session unavailable: %v", err)
			return err
		}
		session = s
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(r.acquireBackOff(), r.config.PrimaryStore.AcquireRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	return session, nil
}

// recordConnectionFailure writes one ERROR_ORACLE_CONNECTION entry per row without touching
// the primary store.
func (r *Robo32) recordConnectionFailure(ctx context.Context, jobID int64, rows []model.Row, mapping model.Mapping, submitter string, cause error) {
	for i, row := range rows {
		in := mapping.ExtractLenient(row)
		entry := model.NewAuditRow(jobID, i+1, in.PredecessorID, in.Classification, model.AuditStatusConnectionError, nil, cause.Error(), submitter)
		r.record(ctx, entry, time.Now())
	}
}

func (r *Robo32) processRow(ctx context.Context, s oraconn.Session, cloner entityCloner, jobID int64, index, total int, row model.Row, mapping model.Mapping, submitter string) {
	started := time.Now()
	progress := fmt.Sprintf("[%d/%d]", index, total)
	logger := logrus.WithFields(logrus.Fields{"job_id": jobID, "row": index})

	in, err := mapping.Extract(row)
	if err != nil {
		lenient := mapping.ExtractLenient(row)
		logger.WithField("status", model.AuditStatusValidationError).Errorf("%s invalid row: %v", progress, err)
		r.record(ctx, model.NewAuditRow(jobID, index, lenient.PredecessorID, lenient.Classification, model.AuditStatusValidationError, nil, err.Error(), submitter), started)
		return
	}

	logger = logger.WithField("predecessor", in.PredecessorID)
	logger.Infof("%s processing predecessor %d", progress, in.PredecessorID)

	newID, err := r.cloneRow(ctx, s, cloner, in)
	if err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			logger.Debugf("%s rollback: %v", progress, rbErr)
		}

		status := model.AuditStatusStoreError
		if errors.Is(err, ErrDuplicateHistorical) {
			status = model.AuditStatusDuplicateHistorical
		}
		logger.WithField("status", status).Errorf("%s predecessor %d: %v", progress, in.PredecessorID, err)
		r.record(ctx, model.NewAuditRow(jobID, index, in.PredecessorID, in.Classification, status, nil, err.Error(), submitter), started)
		return
	}

	r.record(ctx, model.NewAuditRow(jobID, index, in.PredecessorID, in.Classification, model.AuditStatusSuccess, &newID, "", submitter), started)
	logger.WithField("status", model.AuditStatusSuccess).Infof("%s ok -> new entity %d", progress, newID)
}

// cloneRow skips predecessors that already have a successful clone in any job, then clones and
// commits.
func (r *Robo32) cloneRow(ctx context.Context, s oraconn.Session, cloner entityCloner, in model.RowInput) (int64, error) {
	prior, err := r.datasource.FindPriorSuccess(ctx, in.PredecessorID)
	if err != nil {
		return 0, err
	}
	if prior != nil {
		return 0, fmt.Errorf("%w: predecessor %d was cloned into %s by job %d", ErrDuplicateHistorical, in.PredecessorID, formatID(prior.NewID), prior.JobID)
	}

	newID, err := cloner.CloneEntity(ctx, s, in.PredecessorID, in.Classification)
	if err != nil {
		return 0, err
	}
	if err := s.Commit(); err != nil {
		return 0, fmt.Errorf("commit failed: %w", err)
	}
	return newID, nil
}

// record appends to the ledger. A failed write is reported and the loop carries on.
func (r *Robo32) record(ctx context.Context, entry *model.AuditRow, started time.Time) {
	if err := r.datasource.RecordAuditRow(context.WithoutCancel(ctx), entry); err != nil {
		logrus.WithFields(logrus.Fields{"job_id": entry.JobID, "row": entry.RowNumber, "status": entry.Status}).
			Errorf("ledger write failed: %v", err)
		notification.NotifyError(fmt.Errorf("ledger write failed for job %d row %d (%s): %w", entry.JobID, entry.RowNumber, entry.Status, err))
	}
	r.metrics.RecordRow(entry.Status, time.Since(started))
}

// finalize applies the terminal status unless the job already left PROCESSING.
func (r *Robo32) finalize(ctx context.Context, jobID int64, status string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	changed, err := r.datasource.FinalizeJob(ctx, jobID, status)
	if err != nil {
		logrus.Errorf("job %d: could not record status %s: %v", jobID, status, err)
		notification.NotifyError(fmt.Errorf("job %d could not be finalized as %s: %w", jobID, status, err))
		return
	}
	if !changed {
		logrus.Warnf("job %d was no longer processing, %s not applied", jobID, status)
		return
	}

	r.metrics.RecordFinalized(status)
	logrus.Infof("job %d finalized as %s", jobID, status)
	if status == model.JobStatusFailed {
		notification.NotifyJobFailed(jobID, cause)
	}
}

func formatID(id *int64) string {
	if id == nil {
		return "an unknown entity"
	}
	return fmt.Sprintf("%d", *id)
}
