// Package testutil provides shared fakes for tests that exercise the agent
// loop and the HTTP API without real model or server connections.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/optimnow-labs/finops-assistant/internal/agent"
	"github.com/optimnow-labs/finops-assistant/internal/domain"
	"github.com/optimnow-labs/finops-assistant/internal/mcpclient"
	"github.com/optimnow-labs/finops-assistant/internal/tools"
)

// ScriptedStreamer replays canned model replies in order and records every
// request it receives.
type ScriptedStreamer struct {
	mu      sync.Mutex
	replies []agent.Reply
	next    int

	Requests []agent.Request
	// Err, when set, fails every Stream call.
	Err error
}

// NewScriptedStreamer queues the given replies.
func NewScriptedStreamer(replies ...agent.Reply) *ScriptedStreamer {
	return &ScriptedStreamer{replies: replies}
}

// Stream implements agent.MessageStreamer.
func (s *ScriptedStreamer) Stream(_ context.Context, req agent.Request) (*agent.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.next >= len(s.replies) {
		return nil, fmt.Errorf("scripted streamer: no reply queued for request %d", s.next+1)
	}
	reply := s.replies[s.next]
	s.next++

	if req.OnDelta != nil && reply.Text != "" {
		req.OnDelta(reply.Text)
	}
	return &reply, nil
}

// StubRegistry serves a fixed tool set in a fixed state.
type StubRegistry struct {
	RegistryState domain.RegistryState
	ToolSet       map[string]tools.Tool
	Connected     []string
	Declared      []mcpclient.ServerDescriptor
}

// NewStubRegistry returns a READY registry serving the given local tools.
func NewStubRegistry(toolSet ...tools.Tool) *StubRegistry {
	m := make(map[string]tools.Tool, len(toolSet))
	for _, t := range toolSet {
		m[t.Name] = t
	}
	return &StubRegistry{RegistryState: domain.RegistryReady, ToolSet: m}
}

func (r *StubRegistry) Tools() map[string]tools.Tool {
	out := make(map[string]tools.Tool, len(r.ToolSet))
	for k, v := range r.ToolSet {
		out[k] = v
	}
	return out
}

func (r *StubRegistry) State() domain.RegistryState { return r.RegistryState }

func (r *StubRegistry) Usable() bool { return r.RegistryState.Usable() }

func (r *StubRegistry) ConnectedServers() []string { return r.Connected }

func (r *StubRegistry) DeclaredServers() []mcpclient.ServerDescriptor { return r.Declared }

// EchoTool returns a local tool that records invocations and echoes its
// "text" argument.
func EchoTool(name string) tools.Tool {
	return tools.Tool{
		Name:        name,
		Description: "echoes the text argument",
		InputSchema: map[string]any{"type": "object"},
		Origin:      domain.OriginLocal,
		Invoke: func(_ context.Context, args map[string]any) (tools.Result, error) {
			text, _ := args["text"].(string)
			return tools.TextResult(text), nil
		},
	}
}
