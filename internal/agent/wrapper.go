// Package agent drives the tool-using conversation loop over Bedrock and
// enforces the consent and policy gates around mutating tool calls.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/optimnow-labs/finops-assistant/internal/consent"
	"github.com/optimnow-labs/finops-assistant/internal/domain"
	"github.com/optimnow-labs/finops-assistant/internal/policy"
	"github.com/optimnow-labs/finops-assistant/internal/tools"
)

// readTimeout caps read-only tool invocations.
const readTimeout = 60 * time.Second

// GateSet bundles the checks every mutating call passes through.
type GateSet struct {
	Classifier *consent.Classifier
	Gate       *consent.Gate
	Guard      *policy.Guard
	SessionID  string
}

// Wrap returns a copy of the tool whose invocation routes mutating calls
// through the policy guard and the human consent gate. Already-wrapped
// tools pass through untouched so aggregation layers can wrap blindly.
func Wrap(t tools.Tool, gates GateSet) tools.Tool {
	if t.Guarded() {
		return t
	}
	inner := t.Invoke
	return t.AsGuarded(func(ctx context.Context, args map[string]any) (tools.Result, error) {
		decision := gates.Classifier.Classify(t.Name, args)
		if !decision.Mutating {
			// Reads are bounded; mutations run to completion under the
			// caller's deadline so an approved command is never cut short.
			rctx, cancel := context.WithTimeout(ctx, readTimeout)
			defer cancel()
			return invokeWithHints(rctx, inner, args)
		}

		if err := gates.Guard.Check(ctx, decision.Operation); err != nil {
			return tools.TextResult("This operation is blocked by policy: " + err.Error()), nil
		}

		res := gates.Gate.Request(ctx, gates.SessionID, t.Name, decision.Operation)
		if !res.Granted() {
			if res.Outcome == domain.ConsentTimedOut {
				return tools.TextResult("The user did not respond to the approval request in time, so the command was not run."), nil
			}
			return tools.TextResult("The user declined to approve this command, so it was not run. Do not retry it without being asked."), nil
		}
		return invokeWithHints(ctx, inner, args)
	})
}

// WrapAll applies Wrap across a registry snapshot.
func WrapAll(registry map[string]tools.Tool, gates GateSet) map[string]tools.Tool {
	wrapped := make(map[string]tools.Tool, len(registry))
	for name, t := range registry {
		wrapped[name] = Wrap(t, gates)
	}
	return wrapped
}

// invokeWithHints runs the tool and, when the result looks like an IAM
// permission failure, appends guidance so the model explains the fix
// instead of retrying.
func invokeWithHints(ctx context.Context, fn tools.InvokeFunc, args map[string]any) (tools.Result, error) {
	res, err := fn(ctx, args)
	if err != nil {
		return res, err
	}
	if res.IsError && isPermissionError(res.Text) {
		res.Text += "\n\nThis is an IAM permission error. Do not retry: tell the user which permission is missing and suggest they update the assistant's role policy."
	}
	return res, nil
}

var permissionMarkers = []string{
	"AccessDenied",
	"AccessDeniedException",
	"UnauthorizedOperation",
	"UnrecognizedClientException",
	"ExpiredToken",
	"not authorized",
}

func isPermissionError(text string) bool {
	for _, marker := range permissionMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
