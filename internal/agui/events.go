// Package agui implements the server-to-UI event protocol: typed events
// fanned out per session over Server-Sent Events.
package agui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// EventType enumerates the wire protocol event names.
type EventType string

const (
	EventRunStarted         EventType = "RUN_STARTED"
	EventTextMessageContent EventType = "TEXT_MESSAGE_CONTENT"
	EventToolCallStart      EventType = "TOOL_CALL_START"
	EventToolCallEnd        EventType = "TOOL_CALL_END"
	EventConsentRequested   EventType = "CONSENT_REQUESTED"
	EventConsentResolved    EventType = "CONSENT_RESOLVED"
	EventStateSnapshot      EventType = "STATE_SNAPSHOT"
	EventRunFinished        EventType = "RUN_FINISHED"
	EventRunError           EventType = "RUN_ERROR"
)

// Event is one protocol message. Data holds the type-specific payload.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp string    `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ EventType, sessionID string, data any) Event {
	return Event{
		Type:      typ,
		SessionID: sessionID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// WriteSSE serializes the event in SSE framing: the event field carries the
// type, the data field the JSON payload.
func WriteSSE(w io.Writer, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("agui: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
		return fmt.Errorf("agui: write event: %w", err)
	}
	return nil
}
