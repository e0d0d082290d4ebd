package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/thavelick/insight-magician-sub000/internal/observability"
)

func testDeps() (*observability.Logger, *observability.Metrics, *observability.Tracer) {
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	tracer, _ := observability.NewTracer(observability.TraceConfig{})
	return logger, metrics, tracer
}

func newTestExecutor() *Executor {
	return NewExecutor(testDeps())
}

// createFixture writes a SQLite file with a users table holding n rows.
func createFixture(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for i := 1; i <= n; i++ {
		var email any
		if i%2 == 0 {
			email = fmt.Sprintf("user%d@example.com", i)
		}
		if _, err := db.Exec(`INSERT INTO users (id, name, email) VALUES (?, ?, ?)`, i, fmt.Sprintf("user%d", i), email); err != nil {
			t.Fatalf("insert row: %v", err)
		}
	}
	return path
}

func TestExecutor_Paginates(t *testing.T) {
	path := createFixture(t, 10)
	exec := newTestExecutor()

	result, err := exec.Execute(context.Background(), path, "SELECT id, name FROM users ORDER BY id", Options{Page: 1, PageSize: 3})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(result.Rows) != 3 {
		t.Errorf("rows = %d, want 3", len(result.Rows))
	}
	if result.TotalRows != 10 {
		t.Errorf("totalRows = %d, want 10", result.TotalRows)
	}
	if result.TotalPages != 4 {
		t.Errorf("totalPages = %d, want 4", result.TotalPages)
	}
	if !result.HasMore {
		t.Error("hasMore = false, want true")
	}
	if got := result.Rows[0][0]; got != int64(1) {
		t.Errorf("first id = %v (%T), want 1", got, got)
	}
}

func TestExecutor_LastPage(t *testing.T) {
	path := createFixture(t, 10)
	exec := newTestExecutor()

	result, err := exec.Execute(context.Background(), path, "SELECT id FROM users ORDER BY id", Options{Page: 4, PageSize: 3})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(result.Rows) != 1 {
		t.Errorf("rows = %d, want 1", len(result.Rows))
	}
	if result.HasMore {
		t.Error("hasMore = true on last page, want false")
	}
}

// hasMore must hold exactly when totalRows > page*pageSize.
func TestExecutor_HasMoreBoundary(t *testing.T) {
	path := createFixture(t, 6)
	exec := newTestExecutor()

	tests := []struct {
		page    int
		size    int
		hasMore bool
	}{
		{1, 2, true},
		{2, 2, true},
		{3, 2, false},
		{1, 6, false},
		{1, 7, false},
	}
	for _, tt := range tests {
		result, err := exec.Execute(context.Background(), path, "SELECT id FROM users", Options{Page: tt.page, PageSize: tt.size})
		if err != nil {
			t.Fatalf("Execute(page=%d): %v", tt.page, err)
		}
		if result.HasMore != tt.hasMore {
			t.Errorf("page=%d size=%d: hasMore = %v, want %v", tt.page, tt.size, result.HasMore, tt.hasMore)
		}
	}
}

func TestExecutor_ExplicitLimitRunsAsIs(t *testing.T) {
	path := createFixture(t, 10)
	exec := newTestExecutor()

	result, err := exec.Execute(context.Background(), path, "SELECT id FROM users ORDER BY id LIMIT 4", Options{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// Pagination options are ignored; the reported total is just the
	// row count since the true total is unknown.
	if len(result.Rows) != 4 {
		t.Errorf("rows = %d, want 4", len(result.Rows))
	}
	if result.TotalRows != 4 {
		t.Errorf("totalRows = %d, want 4", result.TotalRows)
	}
	if result.Page != 1 || result.TotalPages != 1 {
		t.Errorf("page/totalPages = %d/%d, want 1/1", result.Page, result.TotalPages)
	}
	if result.HasMore {
		t.Error("hasMore = true, want false")
	}
	if result.PageSize != 4 {
		t.Errorf("pageSize = %d, want rows length 4", result.PageSize)
	}
}

func TestExecutor_ClampsPageSize(t *testing.T) {
	path := createFixture(t, 3)
	exec := newTestExecutor()

	result, err := exec.Execute(context.Background(), path, "SELECT id FROM users", Options{PageSize: 5000, MaxPageSize: MaxToolPageSize})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.PageSize != MaxToolPageSize {
		t.Errorf("pageSize = %d, want clamp to %d", result.PageSize, MaxToolPageSize)
	}

	result, err = exec.Execute(context.Background(), path, "SELECT id FROM users", Options{PageSize: -5})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.PageSize != DefaultPageSize {
		t.Errorf("pageSize = %d, want default %d", result.PageSize, DefaultPageSize)
	}
}

func TestExecutor_PreservesNulls(t *testing.T) {
	path := createFixture(t, 2)
	exec := newTestExecutor()

	result, err := exec.Execute(context.Background(), path, "SELECT email FROM users ORDER BY id", Options{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.Rows[0][0] != nil {
		t.Errorf("odd row email = %v, want nil", result.Rows[0][0])
	}
	if result.Rows[1][0] != "user2@example.com" {
		t.Errorf("even row email = %v, want string value", result.Rows[1][0])
	}
}

func TestExecutor_ClassifiesErrors(t *testing.T) {
	path := createFixture(t, 1)
	exec := newTestExecutor()

	tests := []struct {
		name  string
		query string
		kind  Kind
	}{
		{"missing table", "SELECT * FROM nope", KindTableNotFound},
		{"missing column", "SELECT ghost FROM users", KindColumnNotFound},
		{"syntax", "SELECT FROM WHERE", KindSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Execute(context.Background(), path, tt.query, Options{})
			if err == nil {
				t.Fatal("expected error")
			}
			var qe *QueryError
			if !errors.As(err, &qe) {
				t.Fatalf("error type %T, want *QueryError", err)
			}
			if qe.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", qe.Kind, tt.kind)
			}
		})
	}
}

func TestExecutor_MissingFile(t *testing.T) {
	exec := newTestExecutor()

	_, err := exec.Execute(context.Background(), filepath.Join(t.TempDir(), "missing.db"), "SELECT 1", Options{})
	if err == nil {
		t.Fatal("expected error for missing database file")
	}
}

func TestExecutor_EmptyPath(t *testing.T) {
	exec := newTestExecutor()

	_, err := exec.Execute(context.Background(), "", "SELECT 1", Options{})
	var qe *QueryError
	if !errors.As(err, &qe) || qe.Kind != KindOpenFailed {
		t.Fatalf("err = %v, want open_failed QueryError", err)
	}
}

// The COUNT(*) wrap falls back to draining the bare query when the
// wrapped form fails.
func TestCountRows_FallsBackToBareQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	query := "SELECT id FROM users"
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM \(SELECT id FROM users\)`).
		WillReturnError(errors.New("wrap failed"))
	mock.ExpectQuery(`SELECT id FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(3))

	exec := newTestExecutor()
	total, err := exec.countRows(context.Background(), db, query)
	if err != nil {
		t.Fatalf("countRows: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExecutor_PreviewCapsRows(t *testing.T) {
	path := createFixture(t, 20)
	exec := newTestExecutor()

	result, truncated, err := exec.ExecutePreview(context.Background(), path, "SELECT id FROM users ORDER BY id", 5)
	if err != nil {
		t.Fatalf("ExecutePreview: %v", err)
	}
	if len(result.Rows) != 5 {
		t.Errorf("rows = %d, want 5", len(result.Rows))
	}
	if !truncated {
		t.Error("truncated = false, want true")
	}

	result, truncated, err = exec.ExecutePreview(context.Background(), path, "SELECT id FROM users", 100)
	if err != nil {
		t.Fatalf("ExecutePreview: %v", err)
	}
	if truncated {
		t.Error("truncated = true under cap, want false")
	}
	if len(result.Rows) != 20 {
		t.Errorf("rows = %d, want 20", len(result.Rows))
	}
}
