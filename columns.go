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
	"fmt"
	"regexp"
	"strings"
	"sync"

	oraconn "github.com/neoproj/robo32/internal/ora-conn"
)

const sqlTableColumns = `SELECT column_name, nullable, column_id
  FROM all_tab_columns
 WHERE owner = :p_owner
   AND table_name = :p_table
 ORDER BY column_id`

var identifierPattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

// sanitizeIdentifier upper-cases a schema identifier and rejects anything
// that could not be safely spliced into a statement.
func sanitizeIdentifier(name string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(name))
	if !identifierPattern.MatchString(id) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return id, nil
}

// columnCache remembers table metadata for the lifetime of one job run.
type columnCache struct {
	owner  string
	mu     sync.Mutex
	tables map[string][]string
}

func newColumnCache(owner string) *columnCache {
	return &columnCache{owner: owner, tables: make(map[string][]string)}
}

// columns returns the ordered column names of owner.table.
func (c *columnCache) columns(ctx context.Context, s oraconn.Session, table string) ([]string, error) {
	owner, err := sanitizeIdentifier(c.owner)
	if err != nil {
		return nil, err
	}
	name, err := sanitizeIdentifier(table)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	cached, ok := c.tables[name]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	rows, err := s.QueryContext(ctx, sqlTableColumns, sql.Named("p_owner", owner), sql.Named("p_table", name))
	if err != nil {
		return nil, classifyMetadataError(owner, name, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			column   string
			nullable sql.NullString
			columnID sql.NullInt64
		)
		if err := rows.Scan(&column, &nullable, &columnID); err != nil {
			return nil, err
		}
		cols = append(cols, strings.ToUpper(column))
	}
	if err := rows.Err(); err != nil {
		return nil, classifyMetadataError(owner, name, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, owner, name)
	}

	c.mu.Lock()
	c.tables[name] = cols
	c.mu.Unlock()
	return cols, nil
}

// cloneColumnList returns the comma separated columns of table minus the excluded ones.
func (c *columnCache) cloneColumnList(ctx context.Context, s oraconn.Session, table string, exclude ...string) (string, error) {
	cols, err := c.columns(ctx, s, table)
	if err != nil {
		return "", err
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[strings.ToUpper(e)] = struct{}{}
	}

	kept := make([]string, 0, len(cols))
	for _, col := range cols {
		if _, ok := skip[col]; ok {
			continue
		}
		id, err := sanitizeIdentifier(col)
		if err != nil {
			return "", err
		}
		kept = append(kept, id)
	}
	if len(kept) == 0 {
		return "", fmt.Errorf("%w: %s.%s", ErrNoCloneableColumns, c.owner, table)
	}
	return strings.Join(kept, ", "), nil
}

func classifyMetadataError(owner, table string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ORA-00942"):
		return fmt.Errorf("%w: %s.%s: %v", ErrTableNotFound, owner, table, err)
	case strings.Contains(msg, "ORA-01031"), strings.Contains(msg, "ORA-01749"):
		return fmt.Errorf("%w: %s.%s: %v", ErrAccessDenied, owner, table, err)
	}
	return err
}
