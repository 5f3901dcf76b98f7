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

package model

import "time"

const (
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// Job is one submitted spreadsheet. At most one job is PROCESSING at any time.
type Job struct {
	ID         int64      `json:"id"`
	Filename   string     `json:"filename"`
	UploadedBy string     `json:"uploaded_by"`
	TotalRows  int        `json:"total_rows"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobRequest carries what admission needs to create a job.
type JobRequest struct {
	Filename   string `json:"filename"`
	UploadedBy string `json:"uploaded_by"`
	TotalRows  int    `json:"total_rows"`
}

// JobSummary is the progress view derived from the audit ledger.
type JobSummary struct {
	JobID     int64  `json:"job_id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Success   int    `json:"success"`
	Errors    int    `json:"errors"`
	Remaining int    `json:"remaining"`
}

// IsTerminal reports whether the job already reached COMPLETED or FAILED.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Remaining returns the rows not yet represented in the ledger, never negative.
func Remaining(total, processed int) int {
	if processed >= total {
		return 0
	}
	return total - processed
}
