package agent

import "context"

// ToolCall is one tool invocation the model requested.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolReturn carries a tool result back into the conversation.
type ToolReturn struct {
	ID      string
	Text    string
	IsError bool
}

// Message is one turn of the model conversation. Exactly one of the role
// shapes is populated: user text, assistant text plus tool calls, or tool
// returns (which Bedrock requires in a user-role message).
type Message struct {
	Role        string // "user" or "assistant"
	Text        string
	ToolCalls   []ToolCall
	ToolReturns []ToolReturn
}

// Reply is the model's complete response to one request.
type Reply struct {
	Text         string
	ToolCalls    []ToolCall
	StopReason   string // end_turn, tool_use or max_tokens
	InputTokens  int64
	OutputTokens int64
}

// ToolSpec is the schema surface advertised to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema any
}

// Request is one model call within a run.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
	// OnDelta receives assistant text as it streams. May be nil.
	OnDelta func(text string)
}

// MessageStreamer is the model boundary the run loop drives. The Bedrock
// implementation streams; tests script replies.
type MessageStreamer interface {
	Stream(ctx context.Context, req Request) (*Reply, error)
}
