package models

import "strings"

// WidgetType distinguishes table widgets from custom chart widgets.
type WidgetType string

const (
	WidgetDataTable WidgetType = "data-table"
	WidgetGraph     WidgetType = "graph"
)

// Dimensions is the widget's grid footprint, each side 1..4.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WidgetResults is the client-cached result set of a widget's last run.
// Present with zero rows means the query ran and returned nothing;
// absent means it never ran.
type WidgetResults struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// WidgetSummary is the client's snapshot of one dashboard widget,
// supplied per request. The core reads it for list_widgets and as the
// "before" image for edit_widget; it never mutates the snapshot.
type WidgetSummary struct {
	ID            int            `json:"id"`
	Title         string         `json:"title"`
	Type          WidgetType     `json:"type"`
	Query         string         `json:"query"`
	Dimensions    Dimensions     `json:"dimensions"`
	HasResults    bool           `json:"hasResults"`
	ChartFunction string         `json:"chartFunction,omitempty"`
	Results       *WidgetResults `json:"results,omitempty"`
}

// Status derives the user-visible widget state from the snapshot.
func (w WidgetSummary) Status() string {
	switch {
	case strings.TrimSpace(w.Query) == "":
		return "empty (no query set)"
	case w.HasResults:
		return "showing data"
	case w.Results != nil:
		return "no results (query returned empty)"
	default:
		return "configured but not run"
	}
}
