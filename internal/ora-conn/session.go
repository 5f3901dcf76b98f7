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

package oraconn

import (
	"context"
	"database/sql"
	"errors"
)

var ErrSessionClosed = errors.New("primary store session is closed")

// Session is an exclusively owned primary-store connection. Statements run in
// a transaction that is opened by the first statement and ended by Commit or
// Rollback. A Session is not safe for concurrent use.
type Session interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	Commit() error
	Rollback() error
	Close() error
}

type session struct {
	conn   *sql.Conn
	tx     *sql.Tx
	closed bool
}

func NewSession(conn *sql.Conn) Session {
	return &session{conn: conn}
}

func (s *session) begin(ctx context.Context) (*sql.Tx, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx == nil {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		s.tx = tx
	}
	return s.tx, nil
}

func (s *session) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx.ExecContext(ctx, query, args...)
}

func (s *session) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx.QueryContext(ctx, query, args...)
}

// Commit makes the open transaction durable. Without one it does nothing.
func (s *session) Commit() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit()
}

// Rollback discards the open transaction. Without one it does nothing.
func (s *session) Rollback() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	err := tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// Close discards uncommitted work and returns the connection to the pool.
// Closing twice is a no-op.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	rbErr := s.Rollback()
	s.closed = true
	return errors.Join(rbErr, s.conn.Close())
}

// QueryRow runs a query expected to yield at most one row and scans it into
// dest. It reports false when no row came back.
func QueryRow(ctx context.Context, s Session, dest []interface{}, query string, args ...interface{}) (bool, error) {
	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return false, rows.Err()
	}
	if err := rows.Scan(dest...); err != nil {
		return false, err
	}
	return true, rows.Err()
}
