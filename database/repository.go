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

	"github.com/neoproj/robo32/model"
)

// IDataSource defines the interface for audit store operations, grouping related functionalities.
type IDataSource interface {
	job   // Job admission and lifecycle
	audit // Append-only row ledger
}

type job interface {
	CreateJob(ctx context.Context, job *model.Job) (*model.Job, error)          // Admits a job unless another one is processing
	GetJob(ctx context.Context, id int64) (*model.Job, error)                   // Retrieves a job by ID
	GetActiveJob(ctx context.Context) (*model.Job, error)                       // Returns the processing job or nil
	GetRecentJobs(ctx context.Context, limit int) ([]model.Job, error)          // Lists the newest jobs first
	GetProcessingJobs(ctx context.Context) ([]model.Job, error)                 // Lists every job still processing
	FinalizeJob(ctx context.Context, id int64, status string) (bool, error)     // Moves a processing job to a terminal status
}

type audit interface {
	RecordAuditRow(ctx context.Context, row *model.AuditRow) error                     // Appends one row outcome
	FindPriorSuccess(ctx context.Context, predecessorID int64) (*model.AuditRow, error) // Latest successful clone of a predecessor, any job
	GetJobSummary(ctx context.Context, jobID int64) (*model.JobSummary, error)          // Progress counters for a job
	GetJobErrors(ctx context.Context, jobID int64) ([]model.AuditRow, error)            // Failed rows ordered by row index
}
