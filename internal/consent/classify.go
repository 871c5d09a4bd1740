// Package consent classifies tool calls as mutating or read-only and gates
// mutating calls behind an explicit human approval exchange.
package consent

import (
	"encoding/json"
	"strings"
)

// Command-execution tools are the only tools whose arguments embed arbitrary
// CLI operations. Everything else is classified by its own name and purpose,
// which for the built-in tool set is always read-only.
var defaultCommandTools = map[string]bool{
	"call_aws":        true,
	"execute_command": true,
}

// Argument keys checked, in priority order, for the command string of a
// command-execution tool. The first key present wins even when empty.
var defaultArgKeys = []string{"command", "aws_command", "cli_command"}

var defaultReadOnlyKeywords = []string{
	"describe", "list", "get", "show", "head",
}

var defaultMutationKeywords = []string{
	"create", "delete", "modify", "update", "put", "terminate",
	"stop", "start", "reboot", "attach", "detach",
	"associate", "disassociate", "enable", "disable",
	"register", "deregister", "configure",
}

// Decision is the classifier verdict for a single tool call.
type Decision struct {
	// Mutating reports whether the call should be routed through the
	// approval gate before execution.
	Mutating bool

	// Ambiguous is set when no keyword matched and the verdict fell back
	// to the configured default. Strict deployments treat ambiguous calls
	// as mutating.
	Ambiguous bool

	// Operation is the command text the verdict was derived from, or the
	// tool name for non-command tools. Surfaced in approval prompts and
	// audit logs.
	Operation string
}

// Classifier decides whether a tool call will change cloud state. It is a
// keyword heuristic over the command text of command-execution tools, with
// read-only keywords taking precedence over mutation keywords so that
// compound commands like "describe-instances before terminate" do not
// prompt the operator needlessly.
type Classifier struct {
	// CommandTools names the tools whose arguments carry a raw command.
	// Defaults to call_aws and execute_command.
	CommandTools map[string]bool

	// ArgKeys are checked in order for the command text.
	ArgKeys []string

	ReadOnlyKeywords []string
	MutationKeywords []string

	// StrictConsent treats ambiguous commands as mutating.
	StrictConsent bool
}

// NewClassifier returns a classifier with the default keyword tables.
func NewClassifier(strict bool) *Classifier {
	return &Classifier{
		CommandTools:     defaultCommandTools,
		ArgKeys:          defaultArgKeys,
		ReadOnlyKeywords: defaultReadOnlyKeywords,
		MutationKeywords: defaultMutationKeywords,
		StrictConsent:    strict,
	}
}

// Classify inspects a pending tool call and returns its verdict. Tools
// outside the command-execution set are always read-only: their behavior is
// fixed by the tool itself, not by caller-supplied command text.
func (c *Classifier) Classify(toolName string, args map[string]any) Decision {
	if !c.CommandTools[toolName] {
		return Decision{Operation: toolName}
	}

	op := c.extractOperation(args)
	lower := strings.ToLower(op)

	for _, kw := range c.ReadOnlyKeywords {
		if containsWord(lower, kw) {
			return Decision{Operation: op}
		}
	}
	for _, kw := range c.MutationKeywords {
		if containsWord(lower, kw) {
			return Decision{Mutating: true, Operation: op}
		}
	}
	return Decision{Mutating: c.StrictConsent, Ambiguous: true, Operation: op}
}

// extractOperation pulls the command text from the call arguments. When none
// of the known keys carries a string, the whole argument map is stringified
// so an unusual server schema still gets scanned rather than silently
// passing through.
func (c *Classifier) extractOperation(args map[string]any) string {
	for _, key := range c.ArgKeys {
		if v, ok := args[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(raw)
}

// containsWord matches a keyword at token boundaries, a deliberate
// tightening of a plain substring scan: "get" embedded in "target" must not
// mark a command read-only. AWS CLI operations are hyphenated
// (terminate-instances), so hyphens count as boundaries along with
// whitespace and common punctuation.
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if boundaryAt(text, start-1) && boundaryAt(text, end) {
			return true
		}
		idx = start + 1
	}
}

func boundaryAt(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	switch text[i] {
	case ' ', '\t', '\n', '-', '_', ':', '.', ',', '"', '\'', '=', '/':
		return true
	}
	return false
}
