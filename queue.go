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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/neoproj/robo32/config"
	redis_db "github.com/neoproj/robo32/internal/redis-db"
	"github.com/neoproj/robo32/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

// TaskRunJob is the asynq task type carrying one job run.
const TaskRunJob = "robo32:run_job"

// runJobTimeout bounds a single queued run. asynq falls back to 30 minutes otherwise.
const runJobTimeout = 12 * time.Hour

// Queue hands job runs to the worker process.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	name      string
}

// RunJobPayload is everything a worker needs to run an admitted job.
type RunJobPayload struct {
	JobID     int64         `json:"job_id"`
	Rows      []model.Row   `json:"rows"`
	Mapping   model.Mapping `json:"mapping"`
	Submitter string        `json:"submitter"`
}

// RedisClientOpt translates the configured Redis DNS into asynq connection options.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Username:  redisOption.Username,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	name := conf.Queue.Name
	if name == "" {
		name = config.DEFAULT_QUEUE_NAME
	}
	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		name:      name,
	}, nil
}

// Name returns the asynq queue the runs are sent to.
func (q *Queue) Name() string {
	return q.name
}

func runTaskID(jobID int64) string {
	return fmt.Sprintf("job-%d", jobID)
}

// enqueueRun schedules a run. Runs are never retried: a second pass over the same rows would
// only produce DUPLICADO_HISTORICO entries for the rows that already succeeded.
func (q *Queue) enqueueRun(ctx context.Context, payload RunJobPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskRunJob, data,
		asynq.TaskID(runTaskID(payload.JobID)),
		asynq.Queue(q.name),
		asynq.MaxRetry(0),
		asynq.Timeout(runJobTimeout),
	)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	logrus.Infof(" [*] Successfully enqueued job %d (task %s, queue %s)", payload.JobID, info.ID, info.Queue)
	return nil
}

// dropPendingRun removes a run that no worker picked up yet. Runs already in progress are left
// alone; their finalize is a no-op once the job is no longer PROCESSING.
func (q *Queue) dropPendingRun(jobID int64) error {
	err := q.Inspector.DeleteTask(q.name, runTaskID(jobID))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

func (q *Queue) Close() error {
	if err := q.Client.Close(); err != nil {
		return err
	}
	return q.Inspector.Close()
}

// HandleRunJob is the worker-side handler for TaskRunJob.
func (r *Robo32) HandleRunJob(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("robo32.worker").Start(ctx, "Run job from queue")
	defer span.End()

	var payload RunJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return fmt.Errorf("invalid run payload: %v: %w", err, asynq.SkipRetry)
	}
	return r.Run(ctx, payload.JobID, payload.Rows, payload.Mapping, payload.Submitter)
}
