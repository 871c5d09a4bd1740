package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/optimnow-labs/finops-assistant/internal/domain"
)

// DefaultTimeout bounds how long a pending approval may sit unanswered
// before the call is denied.
const DefaultTimeout = 60 * time.Second

// Prompter is the channel-agnostic surface the gate talks to the human
// through. The chat transport implements it over SSE plus a reply endpoint;
// tests script it.
type Prompter interface {
	// Send delivers a one-way message to the operator.
	Send(ctx context.Context, text string) error

	// Ask delivers a prompt and blocks for the operator's reply, up to
	// the given timeout. A timeout or transport failure returns an error.
	Ask(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// ErrNoReply marks an Ask that expired without an operator response.
// Prompter implementations return it so the gate can record a timeout
// rather than a transport failure.
var ErrNoReply = errors.New("consent: no reply before deadline")

// Resolution records how a single approval request played out.
type Resolution struct {
	Request domain.ConsentRequest
	Outcome domain.ConsentOutcome
	// Reply is the raw operator response, empty when none arrived.
	Reply string
}

// Granted reports whether the gated call may proceed.
func (r Resolution) Granted() bool { return r.Outcome.Granted() }

// Gate requests human approval for mutating tool calls. Every path that is
// not an explicit affirmative reply is a denial: timeouts, transport
// failures, and canceled contexts all resolve to a blocked call.
type Gate struct {
	prompter Prompter
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGate wires a gate over the given prompter. A non-positive timeout
// falls back to DefaultTimeout.
func NewGate(prompter Prompter, timeout time.Duration, logger *slog.Logger) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{prompter: prompter, timeout: timeout, logger: logger}
}

// Request asks the operator to approve the described operation and blocks
// until the request resolves. Operational failures are folded into the
// outcome so callers treat every resolution uniformly.
func (g *Gate) Request(ctx context.Context, sessionID, toolName, operation string) Resolution {
	details := fmt.Sprintf(
		"The assistant wants to run a command that may modify your AWS environment:\n\n    %s\n\nReply yes to approve or no to deny. This request expires in %s.",
		operation, g.timeout,
	)
	res := Resolution{
		Request: domain.NewConsentRequest(sessionID, toolName, operation, details, g.timeout),
	}

	reply, err := g.prompter.Ask(ctx, details, g.timeout)
	switch {
	case errors.Is(err, ErrNoReply) || errors.Is(err, context.DeadlineExceeded):
		res.Outcome = domain.ConsentTimedOut
		g.logger.Warn("consent request timed out",
			"consent_id", res.Request.RequestID, "tool", toolName, "operation", operation)
	case errors.Is(err, context.Canceled):
		res.Outcome = domain.ConsentDenied
		g.logger.Info("consent request canceled",
			"consent_id", res.Request.RequestID, "tool", toolName)
	case err != nil:
		res.Outcome = domain.ConsentDenied
		g.logger.Error("consent prompt failed, denying",
			"consent_id", res.Request.RequestID, "tool", toolName, "error", err)
	default:
		res.Outcome = domain.ParseConsentReply(reply)
		res.Reply = reply
	}

	g.confirm(ctx, res)
	return res
}

// confirm tells the operator how the request resolved. Best effort: a
// failed confirmation does not change the verdict.
func (g *Gate) confirm(ctx context.Context, res Resolution) {
	var text string
	switch res.Outcome {
	case domain.ConsentApproved:
		text = "Approved. Running the command."
	case domain.ConsentTimedOut:
		text = "No response received in time. The command was not run."
	default:
		text = "Denied. The command was not run."
	}
	if err := g.prompter.Send(ctx, text); err != nil {
		g.logger.Warn("consent confirmation not delivered",
			"consent_id", res.Request.RequestID, "error", err)
	}
}
