// Package llm provides LLM client implementations.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents one turn of a conversation transcript.
//
// A transcript is append-only: once a Message has been added to a slice
// that is passed to a Client, it is never mutated. Assistant turns that
// requested tools carry ToolCalls; the turn that answers them carries
// ToolResults, one per request, in request order.
type Message struct {
	Role        string       `json:"role"` // system, user, assistant, tool
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`   // assistant turns only
	ToolResults []ToolResult `json:"tool_results,omitempty"` // tool turns only
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"` // provider-assigned, required for result correlation
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult carries a tool's output (or failure text) back to the model,
// correlated to the requesting ToolCall by ID.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// StopReason distinguishes a final text answer from a request for more
// tool use. Dispatch on it exhaustively; there is no third case.
type StopReason int

const (
	// StopText means the model produced a final text answer.
	StopText StopReason = iota

	// StopToolUse means the model requested one or more tool executions
	// and expects their results before it will answer.
	StopToolUse
)

func (s StopReason) String() string {
	switch s {
	case StopText:
		return "text"
	case StopToolUse:
		return "tool_use"
	default:
		return "unknown"
	}
}

// ChatResponse is the unified response from any LLM provider.
// All fields use proper Go types; wire format conversion happens
// at the provider boundary (anthropic.go).
type ChatResponse struct {
	Model      string
	CreatedAt  time.Time
	StopReason StopReason
	Message    Message

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}
