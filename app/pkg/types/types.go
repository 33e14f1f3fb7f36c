package types

import "context"

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleSystem    = "system"
	ChatRoleTool      = "tool"
)

// ChatMessage is one turn of the conversation transcript handed to the
// model gateway.
type ChatMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a structured command instruction emitted by the model in
// place of, or alongside, free text.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// ChatResult is what the model gateway returns for one completion.
type ChatResult struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ModelGateway is the narrow interface over the chat completion call.
// Prompt construction and transport belong to the implementation.
type ModelGateway interface {
	CompleteChat(ctx context.Context, history []ChatMessage) (ChatResult, error)
}
