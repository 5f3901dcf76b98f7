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
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureContext_FirstSetterSucceeds(t *testing.T) {
	s, mock := newSQLMockSession(t)
	guard := NewContextGuard(testTenant, false)

	mock.ExpectBegin()
	expectTenantContext(mock, testTenant)

	require.NoError(t, guard.EnsureContext(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureContext_FallsBackThroughSetters(t *testing.T) {
	s, mock := newSQLMockSession(t)
	guard := NewContextGuard(testTenant, false)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM dbamv.configest")).
		WillReturnRows(sqlmock.NewRows([]string{"TOTAL"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("dbamv.pkg_mv_config.set_empresa")).
		WillReturnError(errors.New("ORA-06550: PLS-00201: identifier 'DBAMV.PKG_MV_CONFIG' must be declared"))
	mock.ExpectExec(regexp.QuoteMeta("dbamv.ms_set_config.set_empresa")).
		WillReturnError(errors.New("ORA-06550: PLS-00201: identifier 'DBAMV.MS_SET_CONFIG' must be declared"))
	mock.ExpectExec(regexp.QuoteMeta("BEGIN pkg_mv_config.set_empresa")).
		WithArgs(sql.Named("p_emp", testTenant)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("dbamv.pkt_configest.inicializa")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("dbamv.pkg_mv2000.le_empresa")).
		WillReturnRows(sqlmock.NewRows([]string{"EMP"}).AddRow(testTenant))

	require.NoError(t, guard.EnsureContext(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureContext_AllSettersFail(t *testing.T) {
	s, mock := newSQLMockSession(t)
	guard := NewContextGuard(testTenant, false)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM dbamv.configest")).
		WillReturnRows(sqlmock.NewRows([]string{"TOTAL"}).AddRow(1))
	for _, setter := range DefaultContextSetters {
		mock.ExpectExec(regexp.QuoteMeta(setter.Statement)).
			WillReturnError(errors.New("ORA-04067: not executed, " + setter.Name + " does not exist"))
	}

	err := guard.EnsureContext(context.Background(), s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContextSwitchFailed)
	for _, setter := range DefaultContextSetters {
		assert.Contains(t, err.Error(), setter.Name+": ORA-04067")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureContext_TenantNotConfigured(t *testing.T) {
	s, mock := newSQLMockSession(t)
	guard := NewContextGuard(99, false)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM dbamv.configest")).
		WithArgs(sql.Named("p_emp", int64(99))).
		WillReturnRows(sqlmock.NewRows([]string{"TOTAL"}).AddRow(0))

	err := guard.EnsureContext(context.Background(), s)
	assert.ErrorIs(t, err, ErrContextUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureContext_Mismatch(t *testing.T) {
	s, mock := newSQLMockSession(t)
	guard := NewContextGuard(testTenant, false)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM dbamv.configest")).
		WillReturnRows(sqlmock.NewRows([]string{"TOTAL"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("dbamv.pkg_mv_config.set_empresa")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("dbamv.pkt_configest.inicializa")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("dbamv.pkg_mv2000.le_empresa")).
		WillReturnRows(sqlmock.NewRows([]string{"EMP"}).AddRow(1))

	err := guard.EnsureContext(context.Background(), s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContextMismatch)
	assert.Contains(t, err.Error(), "expected 4, session reports 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureContext_NullSessionTenant(t *testing.T) {
	s, mock := newSQLMockSession(t)
	guard := NewContextGuard(testTenant, false)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM dbamv.configest")).
		WillReturnRows(sqlmock.NewRows([]string{"TOTAL"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("dbamv.pkg_mv_config.set_empresa")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("dbamv.pkt_configest.inicializa")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("dbamv.pkg_mv2000.le_empresa")).
		WillReturnRows(sqlmock.NewRows([]string{"EMP"}).AddRow(nil))

	err := guard.EnsureContext(context.Background(), s)
	assert.ErrorIs(t, err, ErrContextMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureContext_Skip(t *testing.T) {
	s, mock := newSQLMockSession(t)
	guard := NewContextGuard(testTenant, true)

	require.NoError(t, guard.EnsureContext(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}
