package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/optimnow-labs/finops-assistant/internal/agui"
	"github.com/optimnow-labs/finops-assistant/internal/consent"
)

// ErrNoPendingConsent reports a consent reply for a session with nothing
// awaiting approval.
var ErrNoPendingConsent = errors.New("no consent request is pending for this session")

// ConsentBridge connects the consent gate to the chat transport: prompts go
// out as CONSENT_REQUESTED events on the session stream, replies come back
// through the consent endpoint. At most one request per session is pending
// at a time, which matches the run loop executing tool calls sequentially.
type ConsentBridge struct {
	broker *agui.Broker

	mu      sync.Mutex
	pending map[string]chan string
}

// NewConsentBridge creates a bridge publishing to the given broker.
func NewConsentBridge(broker *agui.Broker) *ConsentBridge {
	return &ConsentBridge{
		broker:  broker,
		pending: make(map[string]chan string),
	}
}

// PrompterFor returns the session-scoped prompter handed to the gate.
func (b *ConsentBridge) PrompterFor(sessionID string) consent.Prompter {
	return &sessionPrompter{bridge: b, sessionID: sessionID}
}

// Resolve delivers the operator's reply to the pending request, if any.
func (b *ConsentBridge) Resolve(sessionID, reply string) error {
	b.mu.Lock()
	ch, ok := b.pending[sessionID]
	if ok {
		delete(b.pending, sessionID)
	}
	b.mu.Unlock()

	if !ok {
		return ErrNoPendingConsent
	}
	// The waiter may have given up between lookup and send.
	select {
	case ch <- reply:
		return nil
	default:
		return ErrNoPendingConsent
	}
}

// Pending reports whether the session has an unanswered consent request.
func (b *ConsentBridge) Pending(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[sessionID]
	return ok
}

func (b *ConsentBridge) register(sessionID string) chan string {
	ch := make(chan string, 1)
	b.mu.Lock()
	b.pending[sessionID] = ch
	b.mu.Unlock()
	return ch
}

func (b *ConsentBridge) unregister(sessionID string, ch chan string) {
	b.mu.Lock()
	if b.pending[sessionID] == ch {
		delete(b.pending, sessionID)
	}
	b.mu.Unlock()
}

type sessionPrompter struct {
	bridge    *ConsentBridge
	sessionID string
}

// Send publishes a one-way resolution notice on the session stream.
func (p *sessionPrompter) Send(_ context.Context, text string) error {
	p.bridge.broker.Publish(agui.NewEvent(agui.EventConsentResolved, p.sessionID, map[string]string{
		"message": text,
	}))
	return nil
}

// Ask publishes the approval prompt and blocks for the operator's reply.
func (p *sessionPrompter) Ask(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	ch := p.bridge.register(p.sessionID)
	defer p.bridge.unregister(p.sessionID, ch)

	p.bridge.broker.Publish(agui.NewEvent(agui.EventConsentRequested, p.sessionID, map[string]string{
		"prompt":     prompt,
		"expires_in": timeout.String(),
	}))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		return "", consent.ErrNoReply
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
