package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/sqlcheck"
	"github.com/thavelick/insight-magician-sub000/internal/userdb"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

// sampleRowLimit caps how many rows ride back to the model verbatim.
// Summaries still report the full counts.
const sampleRowLimit = 10

// QueryTool runs validated read-only SELECT statements for the model.
type QueryTool struct {
	executor *userdb.Executor
}

// NewQueryTool returns the execute_sql_query tool.
func NewQueryTool(executor *userdb.Executor) *QueryTool {
	return &QueryTool{executor: executor}
}

func (t *QueryTool) Name() string { return "execute_sql_query" }

func (t *QueryTool) Description() string {
	return "Run a read-only SELECT query against the uploaded database and get results back, paginated. Write operations are rejected."
}

func (t *QueryTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "A single SELECT statement. No semicolons. LIMIT and OFFSET are allowed."
    },
    "explanation": {
      "type": "string",
      "description": "One sentence explaining what this query finds out, shown to the user."
    },
    "pageSize": {
      "type": "integer",
      "description": "Rows per page, 1 to 200 (default: 50)."
    }
  },
  "required": ["query", "explanation"]
}`)
}

func (t *QueryTool) PromptDescription() string {
	return "run read-only SELECT queries and read the results"
}

func (t *QueryTool) UsageGuidance() string {
	return "use this to answer questions about the data itself; check the schema first if you are unsure about table or column names"
}

func (t *QueryTool) ExampleQueries() []string {
	return []string{
		"How many users signed up last month?",
		"Show me the top 10 products by revenue",
	}
}

type queryInput struct {
	Query       string `json:"query"`
	Explanation string `json:"explanation"`
	PageSize    *int   `json:"pageSize"`
}

// Execute validates and runs the query, always on page 1. The model
// pages explicitly with LIMIT/OFFSET when it needs more.
func (t *QueryTool) Execute(ctx context.Context, args map[string]any, req *agent.RequestContext) models.ToolOutput {
	if req == nil || req.DatabasePath == "" {
		return models.Fail(models.ActionSQLError, "No database selected. Upload a database file first.")
	}

	var input queryInput
	if err := decodeArgs(args, &input); err != nil {
		return models.FailWrap(models.ActionValidationError, "Invalid tool arguments", err)
	}

	if strings.TrimSpace(input.Explanation) == "" {
		return models.Fail(models.ActionValidationError, "Explanation is required")
	}

	pageSize := userdb.DefaultPageSize
	if input.PageSize != nil {
		if *input.PageSize < 1 || *input.PageSize > userdb.MaxToolPageSize {
			return models.Fail(models.ActionValidationError,
				fmt.Sprintf("pageSize must be between 1 and %d", userdb.MaxToolPageSize))
		}
		pageSize = *input.PageSize
	}

	if err := sqlcheck.Validate(input.Query, sqlcheck.ModeTool); err != nil {
		return models.Fail(models.ActionSQLError, err.Error())
	}

	result, err := t.executor.Execute(ctx, req.DatabasePath, input.Query, userdb.Options{
		Page:        1,
		PageSize:    pageSize,
		MaxPageSize: userdb.MaxToolPageSize,
		Source:      "tool",
	})
	if err != nil {
		return sqlErrorOutput(err)
	}

	sample := result.Rows
	if len(sample) > sampleRowLimit {
		sample = sample[:sampleRowLimit]
	}

	return models.OK(models.ActionQueryExecuted, struct {
		Explanation  string   `json:"explanation"`
		TotalRows    int      `json:"totalRows"`
		ReturnedRows int      `json:"returnedRows"`
		Columns      []string `json:"columns"`
		HasMoreData  bool     `json:"hasMoreData"`
		SampleRows   [][]any  `json:"sampleRows"`
		Table        string   `json:"formattedTable"`
	}{
		Explanation:  input.Explanation,
		TotalRows:    result.TotalRows,
		ReturnedRows: len(result.Rows),
		Columns:      result.Columns,
		HasMoreData:  result.HasMore,
		SampleRows:   sample,
		Table:        formatTextTable(result.Columns, sample, result.TotalRows),
	})
}

// sqlErrorOutput translates an executor failure for the model, keyed by
// the failure kind so it can pick the right recovery: re-check the
// schema versus fix the SQL.
func sqlErrorOutput(err error) models.ToolOutput {
	kind := userdb.KindGeneric
	var qe *userdb.QueryError
	if errors.As(err, &qe) {
		kind = qe.Kind
	}

	msg := "Failed to execute query"
	switch kind {
	case userdb.KindTableNotFound:
		msg = "The query references a table that does not exist. Use get_schema_info to list available tables."
	case userdb.KindColumnNotFound:
		msg = "The query references a column that does not exist. Use get_schema_info to check column names."
	case userdb.KindSyntax:
		msg = "The query contains a SQL syntax error"
	case userdb.KindOpenFailed:
		msg = "Could not open the database file"
	}

	return models.ToolOutput{
		Success:       false,
		Action:        models.ActionSQLError,
		Error:         msg,
		OriginalError: err.Error(),
		Data: struct {
			ErrorType string `json:"errorType"`
		}{string(kind)},
	}
}

// formatTextTable renders the sampled rows as an aligned text table so
// the model can read results without parsing JSON.
func formatTextTable(columns []string, rows [][]any, totalRows int) string {
	if len(columns) == 0 {
		return "(no columns)"
	}

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
	}
	cells := make([][]string, len(rows))
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for c := range columns {
			var text string
			if c < len(row) {
				text = formatCell(row[c])
			}
			cells[r][c] = text
			if len(text) > widths[c] {
				widths[c] = len(text)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cols []string) {
		for i, cell := range cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			if i == len(cols)-1 {
				b.WriteString(cell)
				continue
			}
			fmt.Fprintf(&b, "%-*s", widths[i], cell)
		}
	}

	writeRow(columns)
	b.WriteString("\n")
	for i, w := range widths {
		if i > 0 {
			b.WriteString("-+-")
		}
		b.WriteString(strings.Repeat("-", w))
	}
	for _, row := range cells {
		b.WriteString("\n")
		writeRow(row)
	}

	if len(rows) == 0 {
		b.WriteString("\n(no rows)")
	} else if totalRows > len(rows) {
		fmt.Fprintf(&b, "\n(showing %d of %d rows)", len(rows), totalRows)
	}
	return b.String()
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
