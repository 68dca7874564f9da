package dialogue

import (
	"context"

	"voice-agent-server/internal/tools"
)

// Role identifies who produced a dialogue turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Finish reasons reported by the chat service.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// ToolCall is a model-issued directive to invoke a named tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Turn is one exchange unit in the sequence submitted to the model. Assistant
// turns may carry tool calls; tool turns answer exactly one tool call and must
// directly follow the assistant turn that issued it.
type Turn struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// Request is one chat-completion submission.
type Request struct {
	Turns     []Turn
	Tools     []tools.Definition
	MaxTokens int64
}

// Completion is one candidate reply from the model.
type Completion struct {
	FinishReason string
	Content      string
	ToolCalls    []ToolCall
}

// ChatService is the request/response boundary to the chat-completion model.
type ChatService interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}
