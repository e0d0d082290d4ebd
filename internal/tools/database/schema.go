// Package database implements the chat tools backed by the user's
// uploaded SQLite file: schema introspection and read-only SQL
// execution.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/userdb"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

// SchemaTool exposes database structure to the model.
type SchemaTool struct {
	reader *userdb.SchemaReader
}

// NewSchemaTool returns the get_schema_info tool.
func NewSchemaTool(reader *userdb.SchemaReader) *SchemaTool {
	return &SchemaTool{reader: reader}
}

func (t *SchemaTool) Name() string { return "get_schema_info" }

func (t *SchemaTool) Description() string {
	return "Get the structure of the uploaded database: table names, columns with types, and row counts. Optionally scoped to a single table."
}

func (t *SchemaTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tableName": {
      "type": "string",
      "description": "Limit the result to this table. Omit to describe every table."
    }
  }
}`)
}

func (t *SchemaTool) PromptDescription() string {
	return "inspect database structure (tables, columns, row counts)"
}

func (t *SchemaTool) UsageGuidance() string {
	return "call this before writing SQL whenever you are unsure which tables or columns exist"
}

func (t *SchemaTool) ExampleQueries() []string {
	return []string{
		"What tables are in my database?",
		"What columns does the orders table have?",
	}
}

type schemaInput struct {
	TableName string `json:"tableName"`
}

// Execute reads the full schema, or one table when tableName is given.
func (t *SchemaTool) Execute(ctx context.Context, args map[string]any, req *agent.RequestContext) models.ToolOutput {
	if req == nil || req.DatabasePath == "" {
		return models.Fail(models.ActionSchemaError, "No database selected. Upload a database file first.")
	}

	var input schemaInput
	if err := decodeArgs(args, &input); err != nil {
		return models.FailWrap(models.ActionValidationError, "Invalid tool arguments", err)
	}

	if input.TableName != "" {
		return t.readTable(ctx, req.DatabasePath, input.TableName)
	}
	return t.readAll(ctx, req.DatabasePath)
}

func (t *SchemaTool) readAll(ctx context.Context, dbPath string) models.ToolOutput {
	schema, err := t.reader.ReadAll(ctx, dbPath)
	if err != nil {
		return models.FailWrap(models.ActionSchemaError, "Failed to read database schema", err)
	}
	return models.OK(models.ActionSchemaInfo, struct {
		TableNames []string                      `json:"tableNames"`
		TableCount int                           `json:"tableCount"`
		Tables     map[string]models.TableSchema `json:"tables"`
	}{schema.TableNames, len(schema.TableNames), schema.Tables})
}

func (t *SchemaTool) readTable(ctx context.Context, dbPath, table string) models.ToolOutput {
	schema, err := t.reader.ReadTable(ctx, dbPath, table)
	if err != nil {
		var notFound *userdb.TableNotFoundError
		if errors.As(err, &notFound) {
			return models.ToolOutput{
				Success: false,
				Action:  models.ActionTableNotFound,
				Error:   fmt.Sprintf("Table '%s' not found in the database", table),
				Data: struct {
					AvailableTables []string `json:"availableTables"`
				}{notFound.Available},
			}
		}
		return models.FailWrap(models.ActionSchemaError, "Failed to read database schema", err)
	}

	return models.OK(models.ActionSchemaInfo, struct {
		TableName string              `json:"tableName"`
		Columns   []models.ColumnInfo `json:"columns"`
		RowCount  int64               `json:"rowCount"`
	}{table, schema.Columns, schema.RowCount})
}

// decodeArgs maps loosely typed tool arguments onto a typed input
// struct. Arguments already passed schema validation upstream, so a
// failure here means the model sent a shape the schema did not pin
// down.
func decodeArgs(args map[string]any, v any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
