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
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const auditColumns = `id, job_id, row_index, predecessor_id, new_id, status, error_message,
	species_id, class_id, subclass_id, success_predecessor, executed_by, executed_at, created_at`

// priorSuccessTTL bounds how long a cached dedup hit lives. Ledger rows are never rewritten.
const priorSuccessTTL = 24 * time.Hour

func priorSuccessKey(predecessorID int64) string {
	return fmt.Sprintf("prior-success:%d", predecessorID)
}

// RecordAuditRow appends one row outcome to the ledger.
func (d Datasource) RecordAuditRow(ctx context.Context, row *model.AuditRow) error {
	ctx, span := otel.Tracer("Audit").Start(ctx, "Recording audit row")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("job.id", row.JobID),
		attribute.Int("row.number", row.RowNumber),
		attribute.String("row.status", row.Status),
	)

	if row.ExecutedAt.IsZero() {
		row.ExecutedAt = time.Now()
	}
	row.CreatedAt = time.Now().UTC()

	result, err := d.Conn.ExecContext(ctx, `
		INSERT INTO audit_rows (job_id, row_index, predecessor_id, new_id, status, error_message,
			species_id, class_id, subclass_id, success_predecessor, executed_by, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.JobID, row.RowNumber, row.PredecessorID, row.NewID, row.Status, row.ErrorMessage,
		row.Classification.Species, row.Classification.Class, row.Classification.SubClass,
		row.SuccessPredecessor, row.ExecutedBy, row.ExecutedAt.UTC(), row.CreatedAt)
	if err != nil {
		span.RecordError(err)
		if number, ok := mysqlErrorNumber(err); ok && number == mysqlErrDuplicateEntry {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Row %d of job %d is already recorded", row.RowNumber, row.JobID), err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record audit row", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		row.ID = id
	}

	if row.Status == model.AuditStatusSuccess && d.Cache != nil {
		if err := d.Cache.Set(ctx, priorSuccessKey(row.PredecessorID), row, priorSuccessTTL); err != nil {
			logrus.Warnf("failed to cache prior success for %d: %v", row.PredecessorID, err)
		}
	}
	return nil
}

// FindPriorSuccess returns the most recent SUCCESS row for a predecessor across all jobs, or nil.
func (d Datasource) FindPriorSuccess(ctx context.Context, predecessorID int64) (*model.AuditRow, error) {
	ctx, span := otel.Tracer("Audit").Start(ctx, "Finding prior success")
	defer span.End()
	span.SetAttributes(attribute.Int64("row.predecessor", predecessorID))

	key := priorSuccessKey(predecessorID)
	if d.Cache != nil {
		cached := &model.AuditRow{}
		found, err := d.Cache.Get(ctx, key, cached)
		if err != nil {
			logrus.Warnf("prior success cache lookup failed for %d: %v", predecessorID, err)
		} else if found {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_rows
		WHERE success_predecessor = ? AND status = ?
		ORDER BY id DESC
		LIMIT 1
	`, predecessorID, model.AuditStatusSuccess)

	prior, err := scanAuditRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to look up prior success", err)
	}

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, key, prior, priorSuccessTTL); err != nil {
			logrus.Warnf("failed to cache prior success for %d: %v", predecessorID, err)
		}
	}
	return prior, nil
}

// GetJobSummary derives progress counters for a job from its ledger rows.
func (d Datasource) GetJobSummary(ctx context.Context, jobID int64) (*model.JobSummary, error) {
	ctx, span := otel.Tracer("Audit").Start(ctx, "Summarizing job")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT j.id, j.status, j.total_rows,
			COUNT(r.id),
			COALESCE(SUM(CASE WHEN r.status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN r.status <> ? THEN 1 ELSE 0 END), 0)
		FROM audit_jobs j
		LEFT JOIN audit_rows r ON r.job_id = j.id
		WHERE j.id = ?
		GROUP BY j.id, j.status, j.total_rows
	`, model.AuditStatusSuccess, model.AuditStatusSuccess, jobID)

	summary := &model.JobSummary{}
	err := row.Scan(&summary.JobID, &summary.Status, &summary.Total, &summary.Processed, &summary.Success, &summary.Errors)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Job with ID '%d' not found", jobID), err)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to summarize job", err)
	}
	summary.Remaining = model.Remaining(summary.Total, summary.Processed)
	return summary, nil
}

// GetJobErrors lists the non-SUCCESS rows of a job by row number.
func (d Datasource) GetJobErrors(ctx context.Context, jobID int64) ([]model.AuditRow, error) {
	ctx, span := otel.Tracer("Audit").Start(ctx, "Listing job errors")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_rows
		WHERE job_id = ? AND status <> ?
		ORDER BY row_index ASC
	`, jobID, model.AuditStatusSuccess)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list job errors", err)
	}
	defer rows.Close()

	result := []model.AuditRow{}
	for rows.Next() {
		row, err := scanAuditRow(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan audit row", err)
		}
		result = append(result, *row)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate audit rows", err)
	}
	return result, nil
}

func scanAuditRow(row rowScanner) (*model.AuditRow, error) {
	r := &model.AuditRow{}
	var (
		newID              sql.NullInt64
		errorMessage       sql.NullString
		successPredecessor sql.NullInt64
	)
	err := row.Scan(
		&r.ID, &r.JobID, &r.RowNumber, &r.PredecessorID, &newID, &r.Status, &errorMessage,
		&r.Classification.Species, &r.Classification.Class, &r.Classification.SubClass,
		&successPredecessor, &r.ExecutedBy, &r.ExecutedAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if newID.Valid {
		r.NewID = ptr.Int64(newID.Int64)
	}
	if errorMessage.Valid {
		r.ErrorMessage = ptr.String(errorMessage.String)
	}
	if successPredecessor.Valid {
		r.SuccessPredecessor = ptr.Int64(successPredecessor.Int64)
	}
	return r, nil
}
