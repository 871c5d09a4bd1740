package agui

import "github.com/optimnow-labs/finops-assistant/internal/domain"

// SessionSink adapts the agent's event callbacks onto broker publishes for
// one session.
type SessionSink struct {
	broker    *Broker
	sessionID string
}

// NewSessionSink binds a sink to a session.
func NewSessionSink(broker *Broker, sessionID string) *SessionSink {
	return &SessionSink{broker: broker, sessionID: sessionID}
}

func (s *SessionSink) TextDelta(text string) {
	s.broker.Publish(NewEvent(EventTextMessageContent, s.sessionID, map[string]any{
		"delta": text,
	}))
}

func (s *SessionSink) ToolCallStarted(record domain.ToolCallRecord) {
	s.broker.Publish(NewEvent(EventToolCallStart, s.sessionID, record))
}

func (s *SessionSink) ToolCallFinished(record domain.ToolCallRecord) {
	s.broker.Publish(NewEvent(EventToolCallEnd, s.sessionID, record))
}
