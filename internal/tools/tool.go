// Package tools defines the callable tool model, the aggregate registry, and
// the assistant's built-in local tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/optimnow-labs/finops-assistant/internal/domain"
)

// Result is the outcome of a single tool invocation. IsError marks a failure
// the agent should phrase as such; the text is always safe to hand to the
// model verbatim.
type Result struct {
	Text    string
	IsError bool
}

// InvokeFunc executes a tool call with decoded arguments.
type InvokeFunc func(ctx context.Context, args map[string]any) (Result, error)

// Tool is one callable unit in the aggregate registry. A tool is owned by
// exactly one server connection (or is local); the registry holds non-owning
// references.
type Tool struct {
	Name        string
	Description string
	InputSchema any
	Origin      domain.ToolOrigin
	Server      string // owning server name; empty for local tools
	Invoke      InvokeFunc

	guarded bool
}

// Guarded reports whether this tool has already been wrapped with the
// consent gate. Wrapping must not be applied cumulatively.
func (t Tool) Guarded() bool {
	return t.guarded
}

// AsGuarded returns a copy of t whose invocation is replaced by fn and which
// is marked so a second wrapping pass leaves it untouched.
func (t Tool) AsGuarded(fn InvokeFunc) Tool {
	t.Invoke = fn
	t.guarded = true
	return t
}

// TextResult wraps plain text in a successful Result.
func TextResult(text string) Result {
	return Result{Text: text}
}

// Errorf formats an error Result.
func Errorf(format string, args ...any) Result {
	return Result{Text: fmt.Sprintf(format, args...), IsError: true}
}

// JSONResult marshals v as an indented JSON Result.
func JSONResult(v any) (Result, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("tools: marshal result: %w", err)
	}
	return Result{Text: string(data)}, nil
}

// SchemaFor reflects a JSON schema for the given params struct, inlined and
// without the $schema noise, suitable for both the Bedrock tool config and
// the MCP tool listing.
func SchemaFor(v any) map[string]any {
	r := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := r.Reflect(v)
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// DecodeArgs decodes a raw argument map into a typed params struct via a
// JSON round-trip.
func DecodeArgs(args map[string]any, into any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("tools: encode args: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("tools: decode args: %w", err)
	}
	return nil
}
