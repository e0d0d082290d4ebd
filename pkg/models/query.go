package models

// QueryResult is the paginated output of the query executor. Rows are
// ordered cell arrays matching Columns; nulls are preserved as nils.
// rows length never exceeds PageSize.
type QueryResult struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	TotalRows  int      `json:"totalRows"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalPages int      `json:"totalPages"`
	HasMore    bool     `json:"hasMore"`
}

// ColumnInfo describes one column of a user table.
type ColumnInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Nullable     bool   `json:"nullable"`
	PrimaryKey   bool   `json:"primaryKey"`
	DefaultValue any    `json:"defaultValue"`
}

// TableSchema describes one user table: column metadata plus row count.
type TableSchema struct {
	Columns  []ColumnInfo `json:"columns"`
	RowCount int64        `json:"rowCount"`
}
