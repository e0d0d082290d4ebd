// Package userdb provides read-only access to user-uploaded SQLite
// database files: a paginating query executor and a schema reader.
// Every operation opens the file fresh, read-only, with a 5 second busy
// timeout, and closes it before returning. Concurrent requests against
// the same file are safe because nothing here writes.
package userdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for user database files
)

// Page size limits. Tool calls are capped tighter than the widget HTTP
// path.
const (
	DefaultPageSize   = 50
	MaxToolPageSize   = 200
	MaxWidgetPageSize = 1000
)

// open opens a user database file read-only. The caller must close it.
func open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &QueryError{Kind: KindOpenFailed, Err: fmt.Errorf("database path is empty")}
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000&_query_only=true", path))
	if err != nil {
		return nil, &QueryError{Kind: KindOpenFailed, Err: err}
	}
	return db, nil
}

// quoteIdent quotes a SQL identifier for safe interpolation into
// introspection statements.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// scanRows drains rows into ordered cell arrays. []byte cells are
// converted to strings; NULLs stay nil.
func scanRows(rows *sql.Rows) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	out := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	return columns, out, rows.Err()
}

// runQuery executes a query and drains the full result set.
func runQuery(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, [][]any, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}
