package database

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/neoproj/robo32/config"
	"github.com/stretchr/testify/assert"
)

func TestGetDBConnection_Singleton(t *testing.T) {
	// Pretend a previous call already connected.
	existing := &Datasource{}
	instance = existing
	once = sync.Once{}
	once.Do(func() {})
	defer func() {
		instance = nil
		once = sync.Once{}
	}()

	mockConfig := &config.Configuration{
		AuditStore: config.AuditStoreConfig{Dns: "robo32:secret@tcp(localhost:3306)/robo32"},
	}

	ds1, err := GetDBConnection(mockConfig)
	assert.NoError(t, err)
	assert.Same(t, existing, ds1)

	ds2, err := GetDBConnection(mockConfig)
	assert.NoError(t, err)
	assert.Same(t, ds1, ds2)
}

func TestGetDBConnection_Failure(t *testing.T) {
	instance = nil
	once = sync.Once{}
	defer func() { once = sync.Once{} }()

	mockConfig := &config.Configuration{
		AuditStore: config.AuditStoreConfig{Dns: "invalid-dns"},
	}

	_, err := GetDBConnection(mockConfig)
	assert.Error(t, err)
}

func TestConnectDB_Failure(t *testing.T) {
	db, err := ConnectDB("invalid-dns")
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestMySQLErrorNumber(t *testing.T) {
	wrapped := fmt.Errorf("insert failed: %w", &mysql.MySQLError{Number: mysqlErrDuplicateEntry, Message: "Duplicate entry '1'"})

	number, ok := mysqlErrorNumber(wrapped)
	assert.True(t, ok)
	assert.Equal(t, uint16(mysqlErrDuplicateEntry), number)

	_, ok = mysqlErrorNumber(errors.New("connection refused"))
	assert.False(t, ok)
}
