package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimnow-labs/finops-assistant/internal/domain"
	"github.com/optimnow-labs/finops-assistant/internal/tools"
)

// scriptedStreamer replays a fixed sequence of replies and records every
// request it saw.
type scriptedStreamer struct {
	replies  []*Reply
	err      error
	requests []Request
}

func (s *scriptedStreamer) Stream(_ context.Context, req Request) (*Reply, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	idx := len(s.requests) - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	if req.OnDelta != nil && s.replies[idx].Text != "" {
		req.OnDelta(s.replies[idx].Text)
	}
	return s.replies[idx], nil
}

type staticRegistry map[string]tools.Tool

func (r staticRegistry) Tools() map[string]tools.Tool { return r }

type recordingSink struct {
	deltas   []string
	started  []domain.ToolCallRecord
	finished []domain.ToolCallRecord
}

func (s *recordingSink) TextDelta(text string)                    { s.deltas = append(s.deltas, text) }
func (s *recordingSink) ToolCallStarted(r domain.ToolCallRecord)  { s.started = append(s.started, r) }
func (s *recordingSink) ToolCallFinished(r domain.ToolCallRecord) { s.finished = append(s.finished, r) }

func loopGates(t *testing.T) GateSet {
	t.Helper()
	gates, _ := testGates(t, "yes")
	return gates
}

func TestRun_PlainReply(t *testing.T) {
	t.Parallel()
	streamer := &scriptedStreamer{replies: []*Reply{
		{Text: "Your spend last month was $4,200.", StopReason: "end_turn", InputTokens: 1000, OutputTokens: 200},
	}}
	loop := NewLoop(streamer, staticRegistry{}, loopGates(t), 5, nil)

	sink := &recordingSink{}
	result, err := loop.Run(context.Background(), nil, "How much did we spend?", sink)
	require.NoError(t, err)

	assert.Equal(t, domain.RunFinished, result.Status)
	assert.Equal(t, "Your spend last month was $4,200.", result.Text)
	assert.Empty(t, result.ToolCalls)
	assert.Equal(t, []string{"Your spend last month was $4,200."}, sink.deltas)

	assert.Equal(t, int64(1200), result.Usage.TotalTokens)
	// 1000 in at $0.003/1K plus 200 out at $0.015/1K.
	assert.InDelta(t, 0.006, result.Usage.CostUSD, 0.0001)
}

func TestRun_ToolUseRoundTrip(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	registry := staticRegistry{
		"get_cost_and_usage": countingTool("get_cost_and_usage", &calls),
	}
	streamer := &scriptedStreamer{replies: []*Reply{
		{
			StopReason: "tool_use",
			ToolCalls: []ToolCall{
				{ID: "tu-1", Name: "get_cost_and_usage", Input: map[string]any{"start_date": "2026-08-01"}},
			},
			InputTokens: 500, OutputTokens: 50,
		},
		{Text: "EC2 dominates your bill.", StopReason: "end_turn", InputTokens: 700, OutputTokens: 80},
	}}
	loop := NewLoop(streamer, registry, loopGates(t), 5, nil)

	sink := &recordingSink{}
	result, err := loop.Run(context.Background(), nil, "Break down my costs", sink)
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, "EC2 dominates your bill.", result.Text)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "get_cost_and_usage", result.ToolCalls[0].ToolName)
	require.Len(t, sink.started, 1)
	require.Len(t, sink.finished, 1)

	// Second model call carries the tool result back.
	require.Len(t, streamer.requests, 2)
	last := streamer.requests[1].Messages
	require.NotEmpty(t, last)
	returns := last[len(last)-1].ToolReturns
	require.Len(t, returns, 1)
	assert.Equal(t, "tu-1", returns[0].ID)
	assert.Equal(t, "done", returns[0].Text)

	assert.Equal(t, int64(1330), result.Usage.TotalTokens, "usage accumulates across turns")
}

func TestRun_UnknownToolReturnsErrorResult(t *testing.T) {
	t.Parallel()
	streamer := &scriptedStreamer{replies: []*Reply{
		{
			StopReason: "tool_use",
			ToolCalls:  []ToolCall{{ID: "tu-1", Name: "no_such_tool"}},
		},
		{Text: "Sorry, that tool is unavailable.", StopReason: "end_turn"},
	}}
	loop := NewLoop(streamer, staticRegistry{}, loopGates(t), 5, nil)

	result, err := loop.Run(context.Background(), nil, "hi", nil)
	require.NoError(t, err)

	returns := streamer.requests[1].Messages
	trs := returns[len(returns)-1].ToolReturns
	require.Len(t, trs, 1)
	assert.True(t, trs[0].IsError)
	assert.Contains(t, trs[0].Text, "not available")
	require.Len(t, result.ToolCalls, 1)
	assert.True(t, result.ToolCalls[0].IsError)
}

func TestRun_TurnBudgetBounds(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	registry := staticRegistry{"call_aws": countingTool("call_aws", &calls)}
	// The model asks for a tool forever.
	streamer := &scriptedStreamer{replies: []*Reply{
		{
			StopReason: "tool_use",
			ToolCalls:  []ToolCall{{ID: "tu", Name: "call_aws", Input: map[string]any{"command": "aws ec2 describe-instances"}}},
		},
	}}
	loop := NewLoop(streamer, registry, loopGates(t), 3, nil)

	result, err := loop.Run(context.Background(), nil, "loop forever", nil)
	require.NoError(t, err)
	assert.Len(t, streamer.requests, 3, "model calls stop at the turn budget")
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, domain.RunFinished, result.Status)
}

func TestRun_ModelFailure(t *testing.T) {
	t.Parallel()
	streamer := &scriptedStreamer{err: errors.New("throttling: too many requests")}
	loop := NewLoop(streamer, staticRegistry{}, loopGates(t), 5, nil)

	result, err := loop.Run(context.Background(), nil, "hi", nil)
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, result.Status)
}

func TestRun_HistoryAndSystemPrompt(t *testing.T) {
	t.Parallel()
	streamer := &scriptedStreamer{replies: []*Reply{{Text: "ok", StopReason: "end_turn"}}}
	loop := NewLoop(streamer, staticRegistry{}, loopGates(t), 5, nil)

	history := []domain.ChatMessage{
		domain.NewChatMessage("user", "hello"),
		domain.NewChatMessage("assistant", "hi, how can I help?"),
	}
	_, err := loop.Run(context.Background(), history, "show my spend", nil)
	require.NoError(t, err)

	req := streamer.requests[0]
	assert.True(t, strings.Contains(req.System, "FinOps"), "system prompt is set")
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "hello", req.Messages[0].Text)
	assert.Equal(t, "assistant", req.Messages[1].Role)
	assert.Equal(t, "show my spend", req.Messages[2].Text)
}

func TestRun_MutatingToolConsentDeniedStillCompletes(t *testing.T) {
	t.Parallel()
	gates, _ := testGates(t, "no")
	var calls atomic.Int64
	registry := staticRegistry{"call_aws": countingTool("call_aws", &calls)}
	streamer := &scriptedStreamer{replies: []*Reply{
		{
			StopReason: "tool_use",
			ToolCalls: []ToolCall{{
				ID: "tu-1", Name: "call_aws",
				Input: map[string]any{"command": "aws ec2 terminate-instances --instance-ids i-1"},
			}},
		},
		{Text: "Understood, I won't terminate it.", StopReason: "end_turn"},
	}}
	loop := NewLoop(streamer, registry, gates, 5, nil)

	start := time.Now()
	result, err := loop.Run(context.Background(), nil, "terminate i-1", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, int64(0), calls.Load(), "denied mutation never executes")
	assert.Equal(t, "Understood, I won't terminate it.", result.Text)

	trs := streamer.requests[1].Messages
	returns := trs[len(trs)-1].ToolReturns
	require.Len(t, returns, 1)
	assert.Contains(t, returns[0].Text, "declined")
}
