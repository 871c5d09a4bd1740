package api

import (
	"context"
	"time"

	"github.com/optimnow-labs/finops-assistant/internal/agent"
	"github.com/optimnow-labs/finops-assistant/internal/agui"
	"github.com/optimnow-labs/finops-assistant/internal/consent"
	"github.com/optimnow-labs/finops-assistant/internal/domain"
)

// runTimeout bounds one agent run end to end, consent waits included.
const runTimeout = 10 * time.Minute

// startRun validates that the session can accept a message and launches the
// agent run in the background. Events flow over the session's SSE stream.
func (s *Server) startRun(sess *Session, userText string) error {
	if s.budget != nil {
		if err := s.budget.Check(sess.ID); err != nil {
			return err
		}
	}
	if err := sess.beginRun(); err != nil {
		return err
	}

	history := sess.History()
	sess.Append(domain.NewChatMessage("user", userText))
	go s.run(sess, history, userText)
	return nil
}

func (s *Server) run(sess *Session, history []domain.ChatMessage, userText string) {
	defer sess.endRun()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	s.broker.Publish(agui.NewEvent(agui.EventRunStarted, sess.ID, nil))

	gate := consent.NewGate(s.bridge.PrompterFor(sess.ID), s.cfg.ConsentTimeout, s.logger)
	loop := agent.NewLoop(s.streamer, s.registry, agent.GateSet{
		Classifier: s.classifier,
		Gate:       gate,
		Guard:      s.guard,
		SessionID:  sess.ID,
	}, s.cfg.MaxTurns, s.logger)

	result, err := loop.Run(ctx, history, userText, agui.NewSessionSink(s.broker, sess.ID))
	if err != nil {
		s.logger.Error("agent run failed", "session_id", sess.ID, "error", err)
		s.broker.Publish(agui.NewEvent(agui.EventRunError, sess.ID, map[string]string{
			"message": err.Error(),
		}))
		return
	}

	sess.Append(domain.NewChatMessage("assistant", result.Text))

	if s.budget != nil {
		s.budget.Record(sess.ID, result.Usage.TotalTokens, result.Usage.CostUSD)
	}
	if s.metrics != nil {
		for _, rec := range result.ToolCalls {
			s.metrics.RecordToolCall(ctx, rec.ToolName, string(rec.Origin), rec.IsError)
		}
		s.metrics.RecordModelUsage(ctx, result.Usage.InputTokens, result.Usage.OutputTokens, result.Usage.CostUSD)
	}

	s.broker.Publish(agui.NewEvent(agui.EventStateSnapshot, sess.ID, map[string]any{
		"status":     string(result.Status),
		"usage":      result.Usage,
		"tool_calls": result.ToolCalls,
	}))
	s.broker.Publish(agui.NewEvent(agui.EventRunFinished, sess.ID, map[string]string{
		"status": string(result.Status),
	}))
}
