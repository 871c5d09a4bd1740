// Package policy implements the deterministic safety gate evaluated ahead
// of the consent prompt. The model is never in this path: a
// command the guard denies stays denied no matter what the conversation
// said.
package policy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// TagFetcher resolves the tags of a resource named in a command.
type TagFetcher interface {
	ResourceTags(ctx context.Context, resourceARN string) (map[string]string, error)
}

// arnPattern matches ARNs embedded anywhere in command text.
var arnPattern = regexp.MustCompile(`arn:aws[a-z\-]*:[a-z0-9\-]*:[a-z0-9\-]*:\d{0,12}:[^\s"']+`)

// Verbs that are denied outright regardless of consent. These destroy data
// or identity infrastructure with no practical rollback.
var deniedVerbs = []string{
	"delete-account",
	"close-account",
	"delete-organization",
	"leave-organization",
	"deactivate-mfa-device",
	"delete-trail",
	"stop-logging",
}

// Tags that mark a resource off-limits to automated changes.
var protectedTags = []string{"do-not-modify", "manual-only"}

// Decision explains why the guard blocked a command. A nil *Decision means
// the command may proceed.
type Decision struct {
	Reason string
}

func (d *Decision) Error() string { return "policy: " + d.Reason }

// Guard checks mutating commands against the hard deny list and the
// protected-resource tags.
type Guard struct {
	tags TagFetcher
}

// NewGuard builds a guard over a tag fetcher. A nil fetcher disables the
// tag check but keeps the verb deny list.
func NewGuard(tags TagFetcher) *Guard {
	return &Guard{tags: tags}
}

// Check evaluates a mutating command before the user is ever prompted, so
// hard-denied operations never generate an approval request. It returns a
// non-nil error when:
//   - the command contains a hard-denied verb, or
//   - any ARN in the command resolves to a resource tagged do-not-modify
//     or manual-only.
//
// A tag lookup failure blocks the command: an unverifiable resource is
// treated as protected.
func (g *Guard) Check(ctx context.Context, operation string) error {
	lower := strings.ToLower(operation)
	for _, verb := range deniedVerbs {
		if strings.Contains(lower, verb) {
			return &Decision{Reason: fmt.Sprintf("operation %q is never permitted", verb)}
		}
	}

	if g.tags == nil {
		return nil
	}

	for _, arn := range arnPattern.FindAllString(operation, -1) {
		tags, err := g.tags.ResourceTags(ctx, arn)
		if err != nil {
			return &Decision{Reason: fmt.Sprintf("could not verify tags for %s: %v", arn, err)}
		}
		for _, key := range protectedTags {
			if tags[key] == "true" {
				return &Decision{Reason: fmt.Sprintf("resource %s is tagged %s", arn, key)}
			}
		}
	}
	return nil
}
