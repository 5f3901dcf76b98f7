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

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/neoproj/robo32"
	model2 "github.com/neoproj/robo32/api/model"
	"github.com/neoproj/robo32/internal/apierror"
	"github.com/neoproj/robo32/internal/sheet"
	"github.com/neoproj/robo32/model"
	"github.com/sirupsen/logrus"
)

func respondError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	if errors.Is(err, robo32.ErrConnectionUnavailable) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func jobIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer. pass id in the route /:id"})
		return 0, false
	}
	return id, true
}

// SubmitJob parses an uploaded spreadsheet, admits it as a job and starts processing it in
// the background. The client polls the summary for progress.
func (a Api) SubmitJob(c *gin.Context) {
	var form model2.SubmitJob
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	if err := form.ValidateSubmitJob(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	mapping, err := form.ToMapping()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	rows, err := sheet.Parse(header.Filename, file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submitter := form.Submitter()
	jobID, err := a.robo32.AdmitJob(c.Request.Context(), model.JobRequest{
		Filename:   header.Filename,
		UploadedBy: submitter,
		TotalRows:  len(rows),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if err := a.robo32.StartJob(c.Request.Context(), jobID, rows, mapping, submitter); err != nil {
		logrus.Errorf("job %d could not be started: %v", jobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "job_id": jobID})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// GetActiveJob returns the running job, if any, together with the most recent jobs.
func (a Api) GetActiveJob(c *gin.Context) {
	limit := 0
	if raw := c.Query("recent_limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recent_limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	active, err := a.robo32.GetActiveJob(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	recent, err := a.robo32.GetRecentJobs(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if recent == nil {
		recent = []model.Job{}
	}

	c.JSON(http.StatusOK, gin.H{"active": active, "recent": recent})
}

func (a Api) GetJobSummary(c *gin.Context) {
	id, ok := jobIDParam(c)
	if !ok {
		return
	}

	summary, err := a.robo32.SummarizeJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (a Api) GetJobErrors(c *gin.Context) {
	id, ok := jobIDParam(c)
	if !ok {
		return
	}

	rows, err := a.robo32.ListJobErrors(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if rows == nil {
		rows = []model.AuditRow{}
	}

	c.JSON(http.StatusOK, gin.H{"job_id": id, "errors": rows})
}

func (a Api) CancelJob(c *gin.Context) {
	id, ok := jobIDParam(c)
	if !ok {
		return
	}

	cancelled, err := a.robo32.CancelJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": id, "cancelled": cancelled})
}

// ValidateClassification checks a classification triple against the primary store on a
// session of its own.
func (a Api) ValidateClassification(c *gin.Context) {
	var req model2.ValidateClassification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := req.ValidateClassificationRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	valid, err := a.robo32.ValidateClassification(c.Request.Context(), req.ToClassification())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"valid": valid}
	if !valid {
		resp["status"] = model.AuditStatusValidationError
	}
	c.JSON(http.StatusOK, resp)
}
