package models

// Action tags a ToolOutput with what happened, success or failure.
type Action string

const (
	// Success actions, one per tool.
	ActionSchemaInfo    Action = "schema_info"
	ActionWidgetsListed Action = "widgets_listed"
	ActionQueryExecuted Action = "query_executed"
	ActionWidgetCreated Action = "widget_created"
	ActionWidgetUpdated Action = "widget_updated"

	// Failure actions. These are fed back to the model so it can recover;
	// they never abort the orchestrator loop.
	ActionParseError      Action = "parse_error"
	ActionToolError       Action = "tool_error"
	ActionValidationError Action = "validation_error"
	ActionExecutionError  Action = "execution_error"
	ActionSQLError        Action = "sql_error"
	ActionSchemaError     Action = "schema_error"
	ActionTableNotFound   Action = "table_not_found"
	ActionWidgetNotFound  Action = "widget_not_found"
)

// ToolOutput is the tagged result of a tool invocation. Success carries
// Data; failure carries the user-facing Error plus OriginalError for
// logs. Errors never cross the execute boundary as exceptions.
type ToolOutput struct {
	Success       bool   `json:"success"`
	Action        Action `json:"action"`
	Data          any    `json:"data,omitempty"`
	Error         string `json:"error,omitempty"`
	OriginalError string `json:"originalError,omitempty"`
}

// OK builds a success output.
func OK(action Action, data any) ToolOutput {
	return ToolOutput{Success: true, Action: action, Data: data}
}

// Fail builds a failure output with a user-facing message.
func Fail(action Action, msg string) ToolOutput {
	return ToolOutput{Success: false, Action: action, Error: msg}
}

// FailWrap builds a failure output preserving the underlying error text.
func FailWrap(action Action, msg string, err error) ToolOutput {
	out := ToolOutput{Success: false, Action: action, Error: msg}
	if err != nil {
		out.OriginalError = err.Error()
	}
	return out
}
