package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thavelick/insight-magician-sub000/internal/observability"
	"github.com/thavelick/insight-magician-sub000/internal/sqlcheck"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

// Executor runs validated SELECT statements against user database files
// with server-enforced pagination.
type Executor struct {
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewExecutor creates a query executor.
func NewExecutor(logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Executor {
	return &Executor{
		logger:  logger.WithFields("component", "userdb"),
		metrics: metrics,
		tracer:  tracer,
	}
}

// Options controls pagination for one Execute call.
type Options struct {
	// Page is 1-based; values below 1 are raised to 1.
	Page int
	// PageSize is clamped to [1, MaxPageSize]; 0 means DefaultPageSize.
	PageSize int
	// MaxPageSize is the clamp ceiling: MaxToolPageSize for tool calls,
	// MaxWidgetPageSize for the widget HTTP path. 0 means MaxToolPageSize.
	MaxPageSize int
	// Source labels metrics and traces: "tool", "http", "widget_preview".
	Source string
}

func (o *Options) normalize() {
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = MaxToolPageSize
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize > o.MaxPageSize {
		o.PageSize = o.MaxPageSize
	}
	if o.Source == "" {
		o.Source = "tool"
	}
}

// Execute runs a validated SELECT against the database file at dbPath.
//
// Queries that already carry LIMIT or OFFSET run as-is: the result
// reports totalRows equal to the rows returned and hasMore false, since
// the true total is unknown. All other queries are counted via a
// COUNT(*) wrap (falling back to draining the bare query when the wrap
// fails) and paged with LIMIT/OFFSET.
func (e *Executor) Execute(ctx context.Context, dbPath, query string, opts Options) (*models.QueryResult, error) {
	opts.normalize()

	ctx, span := e.tracer.TraceUserQuery(ctx, opts.Source)
	defer span.End()

	start := time.Now()
	result, err := e.execute(ctx, dbPath, query, opts)
	duration := time.Since(start)

	if err != nil {
		e.tracer.RecordError(span, err)
		e.metrics.RecordUserQuery(opts.Source, "error", duration.Seconds())
		e.metrics.RecordError("userdb", string(errKind(err)))
		e.logger.Error(ctx, "query failed", "error", err, "source", opts.Source)
		return nil, err
	}

	e.metrics.RecordUserQuery(opts.Source, "success", duration.Seconds())
	e.logger.Debug(ctx, "query executed",
		"source", opts.Source,
		"rows", len(result.Rows),
		"total_rows", result.TotalRows,
		"duration_ms", duration.Milliseconds(),
	)
	return result, nil
}

func (e *Executor) execute(ctx context.Context, dbPath, query string, opts Options) (*models.QueryResult, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	// Explicit LIMIT/OFFSET: run as written, total unknown.
	if sqlcheck.HasLimitOrOffset(query) {
		columns, rows, err := runQuery(ctx, db, query)
		if err != nil {
			return nil, wrapQueryError(err)
		}
		return &models.QueryResult{
			Columns:    columns,
			Rows:       rows,
			TotalRows:  len(rows),
			Page:       1,
			PageSize:   len(rows),
			TotalPages: 1,
			HasMore:    false,
		}, nil
	}

	total, err := e.countRows(ctx, db, query)
	if err != nil {
		return nil, wrapQueryError(err)
	}

	offset := (opts.Page - 1) * opts.PageSize
	columns, rows, err := runQuery(ctx, db, query+" LIMIT ? OFFSET ?", opts.PageSize, offset)
	if err != nil {
		return nil, wrapQueryError(err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + opts.PageSize - 1) / opts.PageSize
	}

	return &models.QueryResult{
		Columns:    columns,
		Rows:       rows,
		TotalRows:  total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: totalPages,
		HasMore:    total > opts.Page*opts.PageSize,
	}, nil
}

// countRows totals the result set. The COUNT(*) wrap handles most
// SELECT shapes; for the rest the bare query is drained and counted.
func (e *Executor) countRows(ctx context.Context, db *sql.DB, query string) (int, error) {
	var total int
	err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM (%s)", query)).Scan(&total)
	if err == nil {
		return total, nil
	}

	_, rows, err := runQuery(ctx, db, query)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ExecutePreview runs a widget query without pagination, capped at
// maxRows to keep preview payloads bounded. The second return reports
// whether the cap was hit.
func (e *Executor) ExecutePreview(ctx context.Context, dbPath, query string, maxRows int) (*models.QueryResult, bool, error) {
	ctx, span := e.tracer.TraceUserQuery(ctx, "widget_preview")
	defer span.End()

	start := time.Now()
	db, err := open(dbPath)
	if err != nil {
		e.metrics.RecordUserQuery("widget_preview", "error", time.Since(start).Seconds())
		return nil, false, err
	}
	defer db.Close()

	columns, rows, err := runQuery(ctx, db, query)
	if err != nil {
		err = wrapQueryError(err)
		e.tracer.RecordError(span, err)
		e.metrics.RecordUserQuery("widget_preview", "error", time.Since(start).Seconds())
		e.metrics.RecordError("userdb", string(errKind(err)))
		return nil, false, err
	}

	truncated := false
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
		truncated = true
	}

	e.metrics.RecordUserQuery("widget_preview", "success", time.Since(start).Seconds())
	return &models.QueryResult{
		Columns:    columns,
		Rows:       rows,
		TotalRows:  len(rows),
		Page:       1,
		PageSize:   len(rows),
		TotalPages: 1,
		HasMore:    false,
	}, truncated, nil
}

func errKind(err error) Kind {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindGeneric
}
