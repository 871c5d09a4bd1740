package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"golang.org/x/time/rate"
)

// BedrockAPI is the subset of the Bedrock runtime client used here.
type BedrockAPI interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockStreamer implements MessageStreamer over the Converse streaming
// API.
type BedrockStreamer struct {
	api       BedrockAPI
	modelID   string
	maxTokens int32
	limiter   *rate.Limiter
}

// NewBedrockStreamer builds a streamer for the given model. The limiter is
// optional; when set, every model call waits for a token first.
func NewBedrockStreamer(api BedrockAPI, modelID string, maxTokens int32, limiter *rate.Limiter) *BedrockStreamer {
	return &BedrockStreamer{api: api, modelID: modelID, maxTokens: maxTokens, limiter: limiter}
}

// Stream sends one request and consumes the whole event stream, invoking
// req.OnDelta for assistant text as it arrives. Tool-use input fragments
// are accumulated until the block closes, then parsed as JSON.
func (s *BedrockStreamer) Stream(ctx context.Context, req Request) (*Reply, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("agent: rate limit wait: %w", err)
		}
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(s.modelID),
		Messages: convertMessages(req.Messages),
		InferenceConfig: &bedrocktypes.InferenceConfiguration{
			MaxTokens: aws.Int32(s.maxTokens),
		},
	}
	if req.System != "" {
		input.System = []bedrocktypes.SystemContentBlock{
			&bedrocktypes.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = convertTools(req.Tools)
	}

	out, err := s.api.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("agent: converse stream: %w", err)
	}
	stream := out.GetStream()
	defer stream.Close()

	reply := &Reply{}
	var text strings.Builder

	// One tool-use block may arrive as many input fragments; keyed by
	// content block index.
	type pendingTool struct {
		call  ToolCall
		input strings.Builder
	}
	pending := map[int32]*pendingTool{}

	for event := range stream.Events() {
		switch ev := event.(type) {
		case *bedrocktypes.ConverseStreamOutputMemberContentBlockStart:
			if start, ok := ev.Value.Start.(*bedrocktypes.ContentBlockStartMemberToolUse); ok {
				idx := aws.ToInt32(ev.Value.ContentBlockIndex)
				pending[idx] = &pendingTool{call: ToolCall{
					ID:   aws.ToString(start.Value.ToolUseId),
					Name: aws.ToString(start.Value.Name),
				}}
			}

		case *bedrocktypes.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *bedrocktypes.ContentBlockDeltaMemberText:
				text.WriteString(delta.Value)
				if req.OnDelta != nil {
					req.OnDelta(delta.Value)
				}
			case *bedrocktypes.ContentBlockDeltaMemberToolUse:
				idx := aws.ToInt32(ev.Value.ContentBlockIndex)
				if pt, ok := pending[idx]; ok && delta.Value.Input != nil {
					pt.input.WriteString(*delta.Value.Input)
				}
			}

		case *bedrocktypes.ConverseStreamOutputMemberContentBlockStop:
			idx := aws.ToInt32(ev.Value.ContentBlockIndex)
			if pt, ok := pending[idx]; ok {
				pt.call.Input = parseToolInput(pt.input.String())
				reply.ToolCalls = append(reply.ToolCalls, pt.call)
				delete(pending, idx)
			}

		case *bedrocktypes.ConverseStreamOutputMemberMessageStop:
			reply.StopReason = string(ev.Value.StopReason)

		case *bedrocktypes.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				reply.InputTokens = int64(aws.ToInt32(ev.Value.Usage.InputTokens))
				reply.OutputTokens = int64(aws.ToInt32(ev.Value.Usage.OutputTokens))
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("agent: converse stream read: %w", err)
	}

	reply.Text = text.String()
	return reply, nil
}

func parseToolInput(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		// Hand the model back what it produced rather than dropping it.
		return map[string]any{"_raw": raw}
	}
	return input
}

func convertMessages(messages []Message) []bedrocktypes.Message {
	out := make([]bedrocktypes.Message, 0, len(messages))
	for _, m := range messages {
		var blocks []bedrocktypes.ContentBlock

		if len(m.ToolReturns) > 0 {
			// Bedrock requires tool results in a user-role message.
			for _, tr := range m.ToolReturns {
				status := bedrocktypes.ToolResultStatusSuccess
				if tr.IsError {
					status = bedrocktypes.ToolResultStatusError
				}
				blocks = append(blocks, &bedrocktypes.ContentBlockMemberToolResult{
					Value: bedrocktypes.ToolResultBlock{
						ToolUseId: aws.String(tr.ID),
						Status:    status,
						Content: []bedrocktypes.ToolResultContentBlock{
							&bedrocktypes.ToolResultContentBlockMemberText{Value: tr.Text},
						},
					},
				})
			}
			out = append(out, bedrocktypes.Message{
				Role:    bedrocktypes.ConversationRoleUser,
				Content: blocks,
			})
			continue
		}

		if m.Text != "" {
			blocks = append(blocks, &bedrocktypes.ContentBlockMemberText{Value: m.Text})
		}
		for _, tc := range m.ToolCalls {
			input := tc.Input
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, &bedrocktypes.ContentBlockMemberToolUse{
				Value: bedrocktypes.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		}
		if len(blocks) == 0 {
			continue
		}

		role := bedrocktypes.ConversationRoleUser
		if m.Role == "assistant" {
			role = bedrocktypes.ConversationRoleAssistant
		}
		out = append(out, bedrocktypes.Message{Role: role, Content: blocks})
	}
	return out
}

func convertTools(specs []ToolSpec) *bedrocktypes.ToolConfiguration {
	converted := make([]bedrocktypes.Tool, 0, len(specs))
	for _, spec := range specs {
		converted = append(converted, &bedrocktypes.ToolMemberToolSpec{
			Value: bedrocktypes.ToolSpecification{
				Name:        aws.String(spec.Name),
				Description: aws.String(spec.Description),
				InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(spec.InputSchema),
				},
			},
		})
	}
	return &bedrocktypes.ToolConfiguration{Tools: converted}
}
