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
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cenkalti/backoff/v4"
	"github.com/neoproj/robo32/config"
	"github.com/neoproj/robo32/database"
	oraconn "github.com/neoproj/robo32/internal/ora-conn"
	"github.com/neoproj/robo32/model"
	"github.com/stretchr/testify/require"
)

const testTenant = int64(4)

func newSQLMockSession(t *testing.T) (oraconn.Session, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	return oraconn.NewSession(conn), mock
}

func expectTenantContext(mock sqlmock.Sqlmock, tenant int64) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM dbamv.configest")).
		WithArgs(sql.Named("p_emp", tenant)).
		WillReturnRows(sqlmock.NewRows([]string{"TOTAL"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("BEGIN dbamv.pkg_mv_config.set_empresa(:p_emp); END;")).
		WithArgs(sql.Named("p_emp", tenant)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("dbamv.pkt_configest.inicializa")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("dbamv.pkg_mv2000.le_empresa")).
		WillReturnRows(sqlmock.NewRows([]string{"EMP"}).AddRow(tenant))
}

func expectTableColumns(mock sqlmock.Sqlmock, table string, columns ...string) {
	rows := sqlmock.NewRows([]string{"COLUMN_NAME", "NULLABLE", "COLUMN_ID"})
	for i, c := range columns {
		rows.AddRow(c, "Y", i+1)
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM all_tab_columns")).
		WithArgs(sql.Named("p_owner", "DBAMV"), sql.Named("p_table", table)).
		WillReturnRows(rows)
}

// fakeSession stands in for a primary-store session when the clone engine is stubbed.
type fakeSession struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
	closes    int
	commitErr error
}

func (s *fakeSession) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errors.New("unexpected statement on fake session")
}

func (s *fakeSession) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("unexpected query on fake session")
}

func (s *fakeSession) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	return s.commitErr
}

func (s *fakeSession) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks++
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// fakePool fails its first `failures` acquisitions with err; a negative count fails them all.
type fakePool struct {
	mu       sync.Mutex
	session  oraconn.Session
	err      error
	failures int
	attempts int
}

func (p *fakePool) Acquire(ctx context.Context) (oraconn.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.err != nil && (p.failures < 0 || p.attempts <= p.failures) {
		return nil, p.err
	}
	return p.session, nil
}

type cloneResult struct {
	id  int64
	err error
}

type stubCloner struct {
	mu      sync.Mutex
	results map[int64]cloneResult
	calls   []int64
}

func (c *stubCloner) CloneEntity(ctx context.Context, s oraconn.Session, predecessorID int64, cls model.Classification) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, predecessorID)
	r, ok := c.results[predecessorID]
	if !ok {
		return 0, errors.New("no stubbed result")
	}
	return r.id, r.err
}

var testMapping = model.Mapping{
	Predecessor: "Produto",
	Species:     "Especie",
	Class:       "Classe",
	SubClass:    "SubClasse",
}

func sheetRow(predecessor string, cls model.Classification) model.Row {
	return model.Row{
		"Produto":   predecessor,
		"Especie":   strconv.FormatInt(cls.Species, 10),
		"Classe":    strconv.FormatInt(cls.Class, 10),
		"SubClasse": strconv.FormatInt(cls.SubClass, 10),
	}
}

func testConfiguration() *config.Configuration {
	return &config.Configuration{
		PrimaryStore:    config.PrimaryStoreConfig{Owner: "DBAMV", AcquireRetries: 2},
		Tenant:          config.TenantConfig{ID: testTenant, SkipContext: true},
		Queue:           config.QueueConfig{Name: config.DEFAULT_QUEUE_NAME},
		RecentJobsLimit: 5,
	}
}

// newTestRobo32 builds the service over a mocked audit store. A nil cloner keeps the real engine.
func newTestRobo32(t *testing.T, ds database.IDataSource, pool oraconn.Pool, cloner entityCloner) *Robo32 {
	t.Helper()
	config.MockConfig(testConfiguration())

	r, err := NewRobo32(ds, pool)
	require.NoError(t, err)
	r.acquireBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	if cloner != nil {
		r.newCloner = func() entityCloner { return cloner }
	}
	return r
}
