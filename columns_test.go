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
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "produto", want: "PRODUTO"},
		{in: " UNI_PRO ", want: "UNI_PRO"},
		{in: "SEQ_2", want: "SEQ_2"},
		{in: "produto; DROP TABLE x", wantErr: true},
		{in: "DBAMV.PRODUTO", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := sanitizeIdentifier(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCloneColumnList_ExcludesAndCaches(t *testing.T) {
	s, mock := newSQLMockSession(t)
	cache := newColumnCache("DBAMV")
	ctx := context.Background()

	mock.ExpectBegin()
	expectTableColumns(mock, "UNI_PRO", "CD_UNI_PRO", "CD_PRODUTO", "CD_CODIGO_DE_BARRAS", "DS_UNIDADE", "VL_FATOR")

	cols, err := cache.cloneColumnList(ctx, s, "uni_pro", unitExcludedColumns...)
	require.NoError(t, err)
	assert.Equal(t, "DS_UNIDADE, VL_FATOR", cols)

	// served from the cache, no second metadata query
	cols, err = cache.cloneColumnList(ctx, s, "UNI_PRO", "VL_FATOR")
	require.NoError(t, err)
	assert.Equal(t, "CD_UNI_PRO, CD_PRODUTO, CD_CODIGO_DE_BARRAS, DS_UNIDADE", cols)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloneColumnList_TableNotFound(t *testing.T) {
	s, mock := newSQLMockSession(t)
	cache := newColumnCache("DBAMV")

	mock.ExpectBegin()
	expectTableColumns(mock, "PRODUTO")

	_, err := cache.cloneColumnList(context.Background(), s, "PRODUTO")
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloneColumnList_AccessDenied(t *testing.T) {
	s, mock := newSQLMockSession(t)
	cache := newColumnCache("DBAMV")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM all_tab_columns")).
		WillReturnError(errors.New("ORA-01031: insufficient privileges"))

	_, err := cache.cloneColumnList(context.Background(), s, "PRODUTO")
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloneColumnList_NothingLeftAfterExclusion(t *testing.T) {
	s, mock := newSQLMockSession(t)
	cache := newColumnCache("DBAMV")

	mock.ExpectBegin()
	expectTableColumns(mock, "EMPRESA_PRODUTO", "CD_PRODUTO")

	_, err := cache.cloneColumnList(context.Background(), s, "EMPRESA_PRODUTO", bindingExcludedColumns...)
	assert.ErrorIs(t, err, ErrNoCloneableColumns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloneColumnList_RejectsBadIdentifiers(t *testing.T) {
	s, mock := newSQLMockSession(t)

	_, err := newColumnCache("DBAMV").cloneColumnList(context.Background(), s, "produto p")
	assert.Error(t, err)

	_, err = newColumnCache("dbamv--").cloneColumnList(context.Background(), s, "PRODUTO")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloneColumnList_RejectsBadColumnNames(t *testing.T) {
	s, mock := newSQLMockSession(t)
	cache := newColumnCache("DBAMV")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM all_tab_columns")).
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "NULLABLE", "COLUMN_ID"}).
			AddRow("DS_PRODUTO", "Y", 1).
			AddRow("X\"; --", "Y", 2))

	_, err := cache.cloneColumnList(context.Background(), s, "PRODUTO")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
