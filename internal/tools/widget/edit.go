package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/sqlcheck"
	"github.com/thavelick/insight-magician-sub000/internal/userdb"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

// EditTool updates an existing widget by overlaying the provided fields
// on the request snapshot. The query is re-executed only when the query
// or widget type actually changed.
type EditTool struct {
	executor *userdb.Executor
}

// NewEditTool returns the edit_widget tool.
func NewEditTool(executor *userdb.Executor) *EditTool {
	return &EditTool{executor: executor}
}

func (t *EditTool) Name() string { return "edit_widget" }

func (t *EditTool) Description() string {
	return "Update an existing dashboard widget. Only the provided fields change; the rest keep their current values."
}

func (t *EditTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "widgetId": {
      "type": "integer",
      "description": "Id of the widget to edit, as reported by list_widgets"
    },
    "title": {
      "type": "string",
      "description": "New widget title"
    },
    "query": {
      "type": "string",
      "description": "New SELECT statement. No semicolons, LIMIT, or OFFSET."
    },
    "widgetType": {
      "type": "string",
      "enum": ["data-table", "graph"],
      "description": "New rendering type"
    },
    "chartFunction": {
      "type": "string",
      "description": "New createChart function source. Required when converting to a graph widget."
    },
    "width": {
      "type": "integer",
      "description": "New grid width, 1 to 4"
    },
    "height": {
      "type": "integer",
      "description": "New grid height, 1 to 4"
    }
  },
  "required": ["widgetId"]
}`)
}

func (t *EditTool) PromptDescription() string {
	return "modify an existing dashboard widget"
}

func (t *EditTool) UsageGuidance() string {
	return "use this to change a widget's title, query, type, size, or chart function; find the widgetId with list_widgets first"
}

func (t *EditTool) ExampleQueries() []string {
	return []string{
		"Rename my sales widget to 'Q3 Sales'",
		"Make widget 2 show revenue by region instead",
	}
}

type editInput struct {
	WidgetID      *int    `json:"widgetId"`
	Title         *string `json:"title"`
	Query         *string `json:"query"`
	WidgetType    *string `json:"widgetType"`
	ChartFunction *string `json:"chartFunction"`
	Width         *int    `json:"width"`
	Height        *int    `json:"height"`
}

// updatedWidgetConfig is the post-edit widget as the frontend persists
// it. Results are present only when the query was re-executed.
type updatedWidgetConfig struct {
	ID               int                   `json:"id"`
	Title            string                `json:"title"`
	WidgetType       models.WidgetType     `json:"widgetType"`
	Query            string                `json:"query,omitempty"`
	Width            int                   `json:"width"`
	Height           int                   `json:"height"`
	ChartFunction    string                `json:"chartFunction,omitempty"`
	Results          *models.WidgetResults `json:"results,omitempty"`
	PreviewTruncated bool                  `json:"previewTruncated,omitempty"`
}

// Execute overlays the provided fields on the existing widget and
// reports which fields actually changed.
func (t *EditTool) Execute(ctx context.Context, args map[string]any, req *agent.RequestContext) models.ToolOutput {
	var input editInput
	if err := decodeArgs(args, &input); err != nil {
		return models.FailWrap(models.ActionValidationError, "Invalid tool arguments", err)
	}

	if input.WidgetID == nil || *input.WidgetID <= 0 {
		return models.Fail(models.ActionValidationError, "widgetId must be a positive integer")
	}

	var (
		prior models.WidgetSummary
		ok    bool
	)
	if req != nil {
		prior, ok = req.Widget(*input.WidgetID)
	}
	if !ok {
		ids := make([]int, 0)
		if req != nil {
			for _, w := range req.Widgets {
				ids = append(ids, w.ID)
			}
		}
		return models.ToolOutput{
			Success: false,
			Action:  models.ActionWidgetNotFound,
			Error:   fmt.Sprintf("Widget %d not found", *input.WidgetID),
			Data: struct {
				AvailableWidgetIds []int `json:"availableWidgetIds"`
			}{ids},
		}
	}

	updated := prior
	changes := make([]string, 0, 6)

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return models.Fail(models.ActionValidationError, "Title cannot be empty")
		}
		if title != prior.Title {
			changes = append(changes, "title")
		}
		updated.Title = title
	}

	if input.WidgetType != nil {
		widgetType := models.WidgetType(*input.WidgetType)
		if widgetType != models.WidgetDataTable && widgetType != models.WidgetGraph {
			return models.Fail(models.ActionValidationError, "widgetType must be 'data-table' or 'graph'")
		}
		if widgetType != prior.Type {
			changes = append(changes, "widgetType")
		}
		updated.Type = widgetType
	}

	if input.Query != nil {
		if err := sqlcheck.Validate(*input.Query, sqlcheck.ModeWidget); err != nil {
			return models.Fail(models.ActionSQLError, err.Error())
		}
		if *input.Query != prior.Query {
			changes = append(changes, "query")
		}
		updated.Query = *input.Query
	}

	if input.ChartFunction != nil {
		if !chartFunctionLooksValid(*input.ChartFunction) {
			return models.Fail(models.ActionValidationError, "chartFunction must define a createChart function")
		}
		if *input.ChartFunction != prior.ChartFunction {
			changes = append(changes, "chartFunction")
		}
		updated.ChartFunction = *input.ChartFunction
	}

	if input.Width != nil {
		width, errMsg := dimensionValue(input.Width, "Width")
		if errMsg != "" {
			return models.Fail(models.ActionValidationError, errMsg)
		}
		if width != prior.Dimensions.Width {
			changes = append(changes, "width")
		}
		updated.Dimensions.Width = width
	}

	if input.Height != nil {
		height, errMsg := dimensionValue(input.Height, "Height")
		if errMsg != "" {
			return models.Fail(models.ActionValidationError, errMsg)
		}
		if height != prior.Dimensions.Height {
			changes = append(changes, "height")
		}
		updated.Dimensions.Height = height
	}

	// Converting to a graph needs chart code, either provided now or
	// already on the widget.
	if updated.Type == models.WidgetGraph && prior.Type != models.WidgetGraph &&
		strings.TrimSpace(updated.ChartFunction) == "" {
		return models.Fail(models.ActionValidationError, "chartFunction is required when converting a widget to a graph")
	}

	config := updatedWidgetConfig{
		ID:            updated.ID,
		Title:         updated.Title,
		WidgetType:    updated.Type,
		Query:         updated.Query,
		Width:         updated.Dimensions.Width,
		Height:        updated.Dimensions.Height,
		ChartFunction: updated.ChartFunction,
	}

	message := fmt.Sprintf("No changes were made to widget %d.", updated.ID)
	requery := (slices.Contains(changes, "query") || slices.Contains(changes, "widgetType")) &&
		strings.TrimSpace(updated.Query) != ""
	if requery {
		if req == nil || req.DatabasePath == "" {
			return models.Fail(models.ActionSQLError, "No database selected. Upload a database file first.")
		}
		result, truncated, err := t.executor.ExecutePreview(ctx, req.DatabasePath, updated.Query, previewRowCap)
		if err != nil {
			return models.FailWrap(models.ActionSQLError, "Widget query failed to execute", err)
		}
		config.Results = &models.WidgetResults{Columns: result.Columns, Rows: result.Rows}
		config.PreviewTruncated = truncated
	}

	if len(changes) > 0 {
		message = fmt.Sprintf("Updated %s of widget %d.", joinFields(changes), updated.ID)
		if config.Results != nil {
			message += fmt.Sprintf(" Query returned %d rows.", len(config.Results.Rows))
		}
	}

	return models.OK(models.ActionWidgetUpdated, struct {
		WidgetID     int                 `json:"widgetId"`
		Changes      []string            `json:"changes"`
		WidgetConfig updatedWidgetConfig `json:"widgetConfig"`
		Message      string              `json:"message"`
	}{updated.ID, changes, config, message})
}

// joinFields renders a field list as natural language: "title",
// "title and query", "title, query, and width".
func joinFields(fields []string) string {
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0]
	case 2:
		return fields[0] + " and " + fields[1]
	default:
		return strings.Join(fields[:len(fields)-1], ", ") + ", and " + fields[len(fields)-1]
	}
}
