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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neoproj/robo32/internal/apierror"
	"github.com/neoproj/robo32/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const jobColumns = `id, filename, uploaded_by, total_rows, status, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// CreateJob admits a new PROCESSING job. The check for an existing PROCESSING job and the insert
// run in one transaction; the unique active_slot index rejects whatever slips past the check.
func (d Datasource) CreateJob(ctx context.Context, job *model.Job) (*model.Job, error) {
	ctx, span := otel.Tracer("Jobs").Start(ctx, "Admitting job")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var activeID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM audit_jobs WHERE status = ? LIMIT 1 FOR UPDATE`, model.JobStatusProcessing).Scan(&activeID)
	if err == nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Job %d is already processing", activeID), ErrJobAlreadyActive)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		return nil, admissionError(err)
	}

	job.Status = model.JobStatusProcessing
	job.CreatedAt = time.Now().UTC()
	job.FinishedAt = nil

	result, err := tx.ExecContext(ctx, `
		INSERT INTO audit_jobs (filename, uploaded_by, total_rows, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, job.Filename, job.UploadedBy, job.TotalRows, job.Status, job.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return nil, admissionError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read job ID", err)
	}

	if err = tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, admissionError(err)
	}

	job.ID = id
	span.SetAttributes(attribute.Int64("job.id", id))
	return job, nil
}

// admissionError turns lost admission races into the single-active-job conflict.
func admissionError(err error) error {
	if number, ok := mysqlErrorNumber(err); ok {
		switch number {
		case mysqlErrDuplicateEntry, mysqlErrLockDeadlock:
			return apierror.NewAPIError(apierror.ErrConflict, "Another job is already processing", ErrJobAlreadyActive)
		}
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to admit job", err)
}

// GetJob retrieves a job by its ID.
func (d Datasource) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	ctx, span := otel.Tracer("Jobs").Start(ctx, "Fetching job")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM audit_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Job with ID '%d' not found", id), err)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch job", err)
	}
	return job, nil
}

// GetActiveJob returns the PROCESSING job, or nil when the system is idle.
func (d Datasource) GetActiveJob(ctx context.Context) (*model.Job, error) {
	ctx, span := otel.Tracer("Jobs").Start(ctx, "Fetching active job")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM audit_jobs WHERE status = ? ORDER BY id DESC LIMIT 1`, model.JobStatusProcessing)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch active job", err)
	}
	return job, nil
}

// GetRecentJobs lists up to limit jobs, newest first.
func (d Datasource) GetRecentJobs(ctx context.Context, limit int) ([]model.Job, error) {
	ctx, span := otel.Tracer("Jobs").Start(ctx, "Fetching recent jobs")
	defer span.End()

	return d.queryJobs(ctx, `SELECT `+jobColumns+` FROM audit_jobs ORDER BY id DESC LIMIT ?`, limit)
}

// GetProcessingJobs lists every job still marked PROCESSING, oldest first.
func (d Datasource) GetProcessingJobs(ctx context.Context) ([]model.Job, error) {
	ctx, span := otel.Tracer("Jobs").Start(ctx, "Fetching processing jobs")
	defer span.End()

	return d.queryJobs(ctx, `SELECT `+jobColumns+` FROM audit_jobs WHERE status = ? ORDER BY id ASC`, model.JobStatusProcessing)
}

func (d Datasource) queryJobs(ctx context.Context, query string, args ...interface{}) ([]model.Job, error) {
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch jobs", err)
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan job data", err)
		}
		jobs = append(jobs, *job)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate jobs", err)
	}
	return jobs, nil
}

// FinalizeJob moves a job to a terminal status. The update only applies while the job is still
// PROCESSING; the boolean reports whether this call performed the transition.
func (d Datasource) FinalizeJob(ctx context.Context, id int64, status string) (bool, error) {
	ctx, span := otel.Tracer("Jobs").Start(ctx, "Finalizing job")
	defer span.End()
	span.SetAttributes(attribute.Int64("job.id", id), attribute.String("job.status", status))

	if status != model.JobStatusCompleted && status != model.JobStatusFailed {
		return false, apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("'%s' is not a terminal job status", status), nil)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE audit_jobs SET status = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`, status, time.Now().UTC(), id, model.JobStatusProcessing)
	if err != nil {
		span.RecordError(err)
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update job status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return affected == 1, nil
}

func scanJob(row rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var finishedAt sql.NullTime
	err := row.Scan(&job.ID, &job.Filename, &job.UploadedBy, &job.TotalRows, &job.Status, &job.CreatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return job, nil
}
