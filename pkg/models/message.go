package models

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversation entry as exchanged with the LLM adapter.
// ToolCalls appears only on assistant messages; ToolCallID only on
// tool-role messages. Content may be empty only when ToolCalls is
// non-empty.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// ToolCall is the model's request to execute a named tool. Arguments is
// the raw JSON argument string as returned by the provider; a
// whitespace-only string is treated as "{}" at dispatch.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult pairs a tool call with its output, one-to-one.
type ToolResult struct {
	ToolCallID string     `json:"toolCallId"`
	Result     ToolOutput `json:"result"`
}

// Usage accumulates token counts across adapter calls within a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add folds another usage sample into the accumulator.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}
