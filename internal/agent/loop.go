package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/optimnow-labs/finops-assistant/internal/domain"
	"github.com/optimnow-labs/finops-assistant/internal/tools"
)

// DefaultMaxTurns bounds how many model calls one user message may trigger.
const DefaultMaxTurns = 25

// Claude 3.5 Sonnet on-demand pricing per 1K tokens.
const (
	inputTokenPricePer1K  = 0.003
	outputTokenPricePer1K = 0.015
)

const systemPrompt = `You are a FinOps assistant for AWS. You help users understand and reduce their cloud spend using the tools available to you: cost and usage queries, forecasts, utilization metrics, CUR line-item SQL, chart rendering, and any tools provided by connected servers.

Ground every figure you state in tool output from this conversation. When a command would modify the user's environment, the platform will ask the user for approval; never claim a change happened unless the tool result confirms it. Prefer tables and charts for numeric comparisons. Be concise.`

// RunResult is the outcome of one Run: the assistant's final text plus the
// audit trail and usage for the whole tool-use loop.
type RunResult struct {
	Text      string
	Status    domain.RunStatus
	ToolCalls []domain.ToolCallRecord
	Usage     domain.RunUsage
}

// Registry supplies the current tool snapshot. The loop re-reads it each
// run so servers that come up between messages become visible.
type Registry interface {
	Tools() map[string]tools.Tool
}

// Loop drives the conversation: model call, tool execution, repeat until
// the model stops asking for tools or the turn budget runs out.
type Loop struct {
	streamer MessageStreamer
	registry Registry
	gates    GateSet
	maxTurns int
	logger   *slog.Logger
}

// NewLoop builds a run loop. maxTurns <= 0 falls back to DefaultMaxTurns.
func NewLoop(streamer MessageStreamer, registry Registry, gates GateSet, maxTurns int, logger *slog.Logger) *Loop {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		streamer: streamer,
		registry: registry,
		gates:    gates,
		maxTurns: maxTurns,
		logger:   logger,
	}
}

// Run processes one user message against the session history and returns
// the assistant's reply. The sink receives text deltas and tool lifecycle
// events as they happen.
func (l *Loop) Run(ctx context.Context, history []domain.ChatMessage, userText string, sink EventSink) (RunResult, error) {
	if sink == nil {
		sink = NopSink{}
	}

	available := WrapAll(l.registry.Tools(), l.gates)
	specs := toolSpecs(available)

	messages := historyMessages(history)
	messages = append(messages, Message{Role: "user", Text: userText})

	result := RunResult{Status: domain.RunFinished}

	for turn := 0; turn < l.maxTurns; turn++ {
		reply, err := l.streamer.Stream(ctx, Request{
			System:   systemPrompt,
			Messages: messages,
			Tools:    specs,
			OnDelta:  sink.TextDelta,
		})
		if err != nil {
			result.Status = domain.RunFailed
			return result, fmt.Errorf("agent: model call: %w", err)
		}

		result.Usage.InputTokens += reply.InputTokens
		result.Usage.OutputTokens += reply.OutputTokens

		if reply.Text != "" {
			result.Text = reply.Text
		}

		if reply.StopReason != "tool_use" || len(reply.ToolCalls) == 0 {
			if reply.StopReason == "max_tokens" {
				l.logger.Warn("run truncated at max tokens")
			}
			break
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Text:      reply.Text,
			ToolCalls: reply.ToolCalls,
		})

		returns := make([]ToolReturn, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			ret, record := l.execute(ctx, available, call, sink)
			returns = append(returns, ret)
			result.ToolCalls = append(result.ToolCalls, record)
		}
		messages = append(messages, Message{Role: "user", ToolReturns: returns})

		if turn == l.maxTurns-1 {
			l.logger.Warn("run hit turn budget", "max_turns", l.maxTurns)
		}
	}

	result.Usage.TotalTokens = result.Usage.InputTokens + result.Usage.OutputTokens
	result.Usage.CostUSD = float64(result.Usage.InputTokens)/1000*inputTokenPricePer1K +
		float64(result.Usage.OutputTokens)/1000*outputTokenPricePer1K
	return result, nil
}

func (l *Loop) execute(ctx context.Context, available map[string]tools.Tool, call ToolCall, sink EventSink) (ToolReturn, domain.ToolCallRecord) {
	tool, ok := available[call.Name]
	if !ok {
		record := domain.NewToolCallRecord(call.Name, domain.OriginLocal)
		record.IsError = true
		record.FinishedAt = record.StartedAt
		l.logger.Warn("model requested unknown tool", "tool", call.Name)
		return ToolReturn{
			ID:      call.ID,
			Text:    fmt.Sprintf("tool %q is not available", call.Name),
			IsError: true,
		}, record
	}

	record := domain.NewToolCallRecord(tool.Name, tool.Origin)
	sink.ToolCallStarted(record)

	res, err := tool.Invoke(ctx, call.Input)
	if err != nil {
		res = tools.Errorf("tool execution failed: %v", err)
	}
	record.IsError = res.IsError
	record.FinishedAt = nowStamp()
	sink.ToolCallFinished(record)

	l.logger.Info("tool call finished",
		"tool", tool.Name, "call_id", record.CallID, "is_error", res.IsError)

	return ToolReturn{ID: call.ID, Text: res.Text, IsError: res.IsError}, record
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func historyMessages(history []domain.ChatMessage) []Message {
	out := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		out = append(out, Message{Role: m.Role, Text: m.Content})
	}
	return out
}

func toolSpecs(available map[string]tools.Tool) []ToolSpec {
	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		t := available[name]
		specs = append(specs, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return specs
}
