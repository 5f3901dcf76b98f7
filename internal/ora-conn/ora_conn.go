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
	"log"
	"strings"
	"time"

	"github.com/neoproj/robo32/config"
	_ "github.com/sijms/go-ora/v2" // Import the oracle driver
)

// Pool hands out primary-store sessions.
type Pool interface {
	Acquire(ctx context.Context) (Session, error)
}

type Datasource struct {
	Conn *sql.DB
}

// NewDataSource opens the primary-store pool described by the configuration.
func NewDataSource(cfg config.PrimaryStoreConfig) (*Datasource, error) {
	con, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Datasource{Conn: con}, nil
}

// ConnectDB establishes a primary-store connection pool.
func ConnectDB(cfg config.PrimaryStoreConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.Dns) == "" {
		return nil, errors.New("primary store DNS is empty")
	}

	db, err := sql.Open("oracle", cfg.Dns)
	if err != nil {
		return nil, err
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		log.Printf("Primary store connection error ❌: %v", err)
		_ = db.Close()
		return nil, err
	}

	log.Println("Primary store connection established ✅")
	return db, nil
}

// Acquire pins one pooled connection and wraps it in a Session.
// The caller owns the session until Close.
func (d *Datasource) Acquire(ctx context.Context) (Session, error) {
	conn, err := d.Conn.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return NewSession(conn), nil
}

func (d *Datasource) Close() error {
	return d.Conn.Close()
}
