package userdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/thavelick/insight-magician-sub000/internal/observability"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

// Schema is the full introspection result for one database: ordered
// table names plus per-table column metadata and row counts.
type Schema struct {
	TableNames []string                      `json:"tableNames"`
	Tables     map[string]models.TableSchema `json:"tables"`
}

// SchemaReader introspects user database files.
type SchemaReader struct {
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewSchemaReader creates a schema reader.
func NewSchemaReader(logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *SchemaReader {
	return &SchemaReader{
		logger:  logger.WithFields("component", "schema"),
		metrics: metrics,
		tracer:  tracer,
	}
}

// ReadAll lists every non-internal table with columns and row counts.
func (r *SchemaReader) ReadAll(ctx context.Context, dbPath string) (*Schema, error) {
	ctx, span := r.tracer.TraceUserQuery(ctx, "schema")
	defer span.End()

	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	names, err := r.tableNames(ctx, db)
	if err != nil {
		return nil, wrapQueryError(err)
	}

	schema := &Schema{
		TableNames: names,
		Tables:     make(map[string]models.TableSchema, len(names)),
	}
	for _, name := range names {
		table, err := r.tableSchema(ctx, db, name)
		if err != nil {
			return nil, wrapQueryError(err)
		}
		schema.Tables[name] = *table
	}

	r.logger.Debug(ctx, "schema read", "tables", len(names))
	return schema, nil
}

// ReadTable introspects a single table. A missing table returns a
// *TableNotFoundError carrying the available names.
func (r *SchemaReader) ReadTable(ctx context.Context, dbPath, table string) (*models.TableSchema, error) {
	ctx, span := r.tracer.TraceUserQuery(ctx, "schema")
	defer span.End()

	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	names, err := r.tableNames(ctx, db)
	if err != nil {
		return nil, wrapQueryError(err)
	}

	found := false
	for _, name := range names {
		if name == table {
			found = true
			break
		}
	}
	if !found {
		return nil, &TableNotFoundError{Table: table, Available: names}
	}

	schema, err := r.tableSchema(ctx, db, table)
	if err != nil {
		return nil, wrapQueryError(err)
	}
	return schema, nil
}

// tableNames lists user tables, excluding SQLite internals.
func (r *SchemaReader) tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *SchemaReader) tableSchema(ctx context.Context, db *sql.DB, table string) (*models.TableSchema, error) {
	// PRAGMA arguments cannot be bound, so the identifier is quoted and
	// interpolated.
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make([]models.ColumnInfo, 0)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		col := models.ColumnInfo{
			Name:       name,
			Type:       colType,
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
		}
		if defaultVal.Valid {
			col.DefaultValue = defaultVal.String
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var rowCount int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))).Scan(&rowCount); err != nil {
		return nil, err
	}

	return &models.TableSchema{Columns: columns, RowCount: rowCount}, nil
}
