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

import (
	"time"

	"github.com/wacul/ptr"
)

const (
	AuditStatusSuccess             = "SUCCESS"
	AuditStatusValidationError     = "ERROR_VALIDACAO"
	AuditStatusStoreError          = "ERROR_ORACLE"
	AuditStatusConnectionError     = "ERROR_ORACLE_CONNECTION"
	AuditStatusDuplicateHistorical = "DUPLICADO_HISTORICO"
)

// Classification is the three-part target classification of a cloned entity.
type Classification struct {
	Species  int64 `json:"cd_especie"`
	Class    int64 `json:"cd_classe"`
	SubClass int64 `json:"cd_sub_cla"`
}

// AuditRow is one ledger entry describing the outcome of a single input row.
// Entries are append-only.
type AuditRow struct {
	ID                 int64          `json:"id"`
	JobID              int64          `json:"job_id"`
	RowNumber          int            `json:"row_number"`
	PredecessorID      int64          `json:"predecessor_id"`
	NewID              *int64         `json:"new_id,omitempty"`
	Status             string         `json:"status"`
	ErrorMessage       *string        `json:"error_message,omitempty"`
	Classification     Classification `json:"classification"`
	SuccessPredecessor *int64         `json:"success_predecessor,omitempty"`
	ExecutedBy         string         `json:"executed_by"`
	ExecutedAt         time.Time      `json:"executed_at"`
	CreatedAt          time.Time      `json:"created_at"`
}

// NewAuditRow builds a ledger entry. The success mirror and the new identity
// are only set for SUCCESS outcomes.
func NewAuditRow(jobID int64, rowNumber int, predecessorID int64, cls Classification, status string, newID *int64, detail string, executedBy string) *AuditRow {
	row := &AuditRow{
		JobID:          jobID,
		RowNumber:      rowNumber,
		PredecessorID:  predecessorID,
		Status:         status,
		Classification: cls,
		ExecutedBy:     executedBy,
		ExecutedAt:     time.Now(),
	}
	if status == AuditStatusSuccess {
		row.NewID = newID
		row.SuccessPredecessor = ptr.Int64(predecessorID)
	}
	if detail != "" {
		row.ErrorMessage = ptr.String(detail)
	}
	return row
}
