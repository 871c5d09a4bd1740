package agent

import "github.com/optimnow-labs/finops-assistant/internal/domain"

// EventSink receives run progress for the transport layer to fan out.
// Implementations must be safe for calls from the run goroutine.
type EventSink interface {
	TextDelta(text string)
	ToolCallStarted(record domain.ToolCallRecord)
	ToolCallFinished(record domain.ToolCallRecord)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) TextDelta(string)                       {}
func (NopSink) ToolCallStarted(domain.ToolCallRecord)  {}
func (NopSink) ToolCallFinished(domain.ToolCallRecord) {}
