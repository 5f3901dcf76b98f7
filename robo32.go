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
	"embed"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/neoproj/robo32/config"
	"github.com/neoproj/robo32/database"
	"github.com/neoproj/robo32/internal/metrics"
	oraconn "github.com/neoproj/robo32/internal/ora-conn"
	redis_db "github.com/neoproj/robo32/internal/redis-db"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Robo32 runs cloning jobs: it admits them against the audit store, walks their rows on a
// primary-store session and records every outcome in the ledger.
type Robo32 struct {
	datasource database.IDataSource
	pool       oraconn.Pool
	guard      *ContextGuard
	config     *config.Configuration
	redis      redis.UniversalClient
	queue      *Queue
	metrics    *metrics.Collector

	newCloner      func() entityCloner
	acquireBackOff func() backoff.BackOff

	runCtx   context.Context
	stopRuns context.CancelFunc
	runs     sync.WaitGroup
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewRobo32 wires the service from the loaded configuration. Redis is optional: without it
// admission relies on the audit store alone and jobs run in-process.
func NewRobo32(db database.IDataSource, pool oraconn.Pool) (*Robo32, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	r := &Robo32{
		datasource: db,
		pool:       pool,
		config:     configuration,
		guard:      NewContextGuard(configuration.Tenant.ID, configuration.Tenant.SkipContext),
		metrics:    metrics.NewCollector(),
	}
	r.runCtx, r.stopRuns = context.WithCancel(context.Background())

	owner := configuration.PrimaryStore.Owner
	operatingTenantOnly := !configuration.Tenant.AllTenants
	r.newCloner = func() entityCloner {
		return NewCloneEngine(r.guard, owner, operatingTenantOnly)
	}
	r.acquireBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 250 * time.Millisecond
		b.MaxElapsedTime = 30 * time.Second
		return b
	}

	if configuration.Redis.Dns != "" {
		client, err := redis_db.NewRedisClient([]string{configuration.Redis.Dns}, configuration.Redis.SkipTLSVerify)
		if err != nil {
			return nil, err
		}
		r.redis = client.Client()
	}

	if configuration.Queue.Enabled {
		r.queue, err = NewQueue(configuration)
		if err != nil {
			return nil, err
		}
	}

	if configuration.Tenant.SkipContext {
		logrus.Warn("tenant context checks are disabled; primary store sessions will not be pinned to a tenant")
	}
	return r, nil
}

// Metrics exposes the collector backing /metrics.
func (r *Robo32) Metrics() *metrics.Collector {
	return r.metrics
}

// Wait blocks until every in-process run started by StartJob has returned.
func (r *Robo32) Wait() {
	r.runs.Wait()
}

// Close interrupts in-process runs, waits for them to finalize and releases the queue client.
func (r *Robo32) Close() error {
	r.stopRuns()
	r.Wait()
	if r.queue != nil {
		return r.queue.Close()
	}
	return nil
}
