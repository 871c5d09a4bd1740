package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ChatMessage is one turn in a chat session's history.
type ChatMessage struct {
	Role      string `json:"role"` // "user" or "assistant"
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// NewChatMessage creates a ChatMessage stamped with the current time.
func NewChatMessage(role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content, CreatedAt: nowUTC()}
}

// ToolCallRecord captures one wrapped tool invocation for the session audit
// trail.
type ToolCallRecord struct {
	CallID     string         `json:"call_id"`
	ToolName   string         `json:"tool_name"`
	Origin     ToolOrigin     `json:"origin"`
	Mutating   bool           `json:"mutating"`
	Consent    ConsentOutcome `json:"consent,omitempty"`
	Operation  string         `json:"operation,omitempty"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at,omitempty"`
	IsError    bool           `json:"is_error"`
}

// NewToolCallRecord creates a record with a generated call ID.
func NewToolCallRecord(toolName string, origin ToolOrigin) ToolCallRecord {
	return ToolCallRecord{
		CallID:    uuid.NewString(),
		ToolName:  toolName,
		Origin:    origin,
		StartedAt: nowUTC(),
	}
}

// RunUsage reports token usage and estimated cost for one agent run.
type RunUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ConsentRequest is the structured prompt sent to the boundary UI when a
// mutating tool call needs approval.
type ConsentRequest struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	ToolName  string `json:"tool_name"`
	Operation string `json:"operation"`
	Details   string `json:"details"`
	ExpiresAt string `json:"expires_at"`
}

// NewConsentRequest creates a request with a generated ID and expiry.
func NewConsentRequest(sessionID, toolName, operation, details string, timeout time.Duration) ConsentRequest {
	return ConsentRequest{
		RequestID: uuid.NewString(),
		SessionID: sessionID,
		ToolName:  toolName,
		Operation: operation,
		Details:   details,
		ExpiresAt: time.Now().UTC().Add(timeout).Format(time.RFC3339),
	}
}

// ParseConsentReply maps a free-form user reply to a ConsentOutcome. Only a
// small fixed set of case-insensitive affirmative tokens grants approval;
// everything else denies.
func ParseConsentReply(reply string) ConsentOutcome {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "yes", "y", "approve", "ok":
		return ConsentApproved
	}
	return ConsentDenied
}
