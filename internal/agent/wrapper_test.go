package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimnow-labs/finops-assistant/internal/consent"
	"github.com/optimnow-labs/finops-assistant/internal/domain"
	"github.com/optimnow-labs/finops-assistant/internal/policy"
	"github.com/optimnow-labs/finops-assistant/internal/tools"
)

// replyPrompter answers every consent prompt with a fixed reply.
type replyPrompter struct {
	reply string
	asks  atomic.Int64
}

func (p *replyPrompter) Send(context.Context, string) error { return nil }

func (p *replyPrompter) Ask(context.Context, string, time.Duration) (string, error) {
	p.asks.Add(1)
	return p.reply, nil
}

func testGates(t *testing.T, reply string) (GateSet, *replyPrompter) {
	t.Helper()
	p := &replyPrompter{reply: reply}
	return GateSet{
		Classifier: consent.NewClassifier(false),
		Gate:       consent.NewGate(p, time.Second, nil),
		Guard:      policy.NewGuard(nil),
		SessionID:  "sess-1",
	}, p
}

func countingTool(name string, calls *atomic.Int64) tools.Tool {
	return tools.Tool{
		Name:   name,
		Origin: domain.OriginLocal,
		Invoke: func(context.Context, map[string]any) (tools.Result, error) {
			calls.Add(1)
			return tools.TextResult("done"), nil
		},
	}
}

func TestWrap_ReadOnlySkipsConsent(t *testing.T) {
	t.Parallel()
	gates, prompter := testGates(t, "no")
	var calls atomic.Int64
	wrapped := Wrap(countingTool("call_aws", &calls), gates)

	res, err := wrapped.Invoke(context.Background(), map[string]any{
		"command": "aws ec2 describe-instances",
	})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, int64(0), prompter.asks.Load(), "read-only calls never prompt")
}

func TestWrap_MutatingRequiresApproval(t *testing.T) {
	t.Parallel()
	gates, prompter := testGates(t, "yes")
	var calls atomic.Int64
	wrapped := Wrap(countingTool("call_aws", &calls), gates)

	res, err := wrapped.Invoke(context.Background(), map[string]any{
		"command": "aws ec2 terminate-instances --instance-ids i-0abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)
	assert.Equal(t, int64(1), prompter.asks.Load())
}

func TestWrap_DenialBlocksInvocation(t *testing.T) {
	t.Parallel()
	gates, _ := testGates(t, "no")
	var calls atomic.Int64
	wrapped := Wrap(countingTool("call_aws", &calls), gates)

	res, err := wrapped.Invoke(context.Background(), map[string]any{
		"command": "aws ec2 terminate-instances --instance-ids i-0abc",
	})
	require.NoError(t, err, "denial is a normal result, not an error")
	assert.False(t, res.IsError)
	assert.Contains(t, res.Text, "declined")
	assert.Equal(t, int64(0), calls.Load(), "denied calls never execute")
}

// silentPrompter never answers, as when the operator walks away.
type silentPrompter struct{}

func (silentPrompter) Send(context.Context, string) error { return nil }

func (silentPrompter) Ask(context.Context, string, time.Duration) (string, error) {
	return "", consent.ErrNoReply
}

func TestWrap_ConsentTimeoutBlocksInvocation(t *testing.T) {
	t.Parallel()
	gates := GateSet{
		Classifier: consent.NewClassifier(false),
		Gate:       consent.NewGate(silentPrompter{}, time.Second, nil),
		Guard:      policy.NewGuard(nil),
		SessionID:  "sess-1",
	}
	var calls atomic.Int64
	wrapped := Wrap(countingTool("call_aws", &calls), gates)

	res, err := wrapped.Invoke(context.Background(), map[string]any{
		"command": "aws ec2 terminate-instances --instance-ids i-0abc",
	})
	require.NoError(t, err, "timeout is a normal result, not an error")
	assert.False(t, res.IsError)
	assert.Contains(t, res.Text, "did not respond")
	assert.Equal(t, int64(0), calls.Load(), "unanswered calls never execute")
}

func TestWrap_PolicyDenyBeatsConsent(t *testing.T) {
	t.Parallel()
	gates, prompter := testGates(t, "yes")
	var calls atomic.Int64
	wrapped := Wrap(countingTool("call_aws", &calls), gates)

	res, err := wrapped.Invoke(context.Background(), map[string]any{
		"command": "aws cloudtrail stop-logging --name main",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "blocked by policy")
	assert.Equal(t, int64(0), calls.Load())
	assert.Equal(t, int64(0), prompter.asks.Load(), "policy-denied calls never reach the user")
}

func TestWrap_Idempotent(t *testing.T) {
	t.Parallel()
	gates, prompter := testGates(t, "yes")
	var calls atomic.Int64
	once := Wrap(countingTool("call_aws", &calls), gates)
	twice := Wrap(once, gates)

	_, err := twice.Invoke(context.Background(), map[string]any{
		"command": "aws ec2 terminate-instances --instance-ids i-0abc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), prompter.asks.Load(), "double wrapping must not double prompt")
}

func TestWrap_PermissionErrorGetsGuidance(t *testing.T) {
	t.Parallel()
	gates, _ := testGates(t, "yes")
	failing := tools.Tool{
		Name:   "get_cost_and_usage",
		Origin: domain.OriginLocal,
		Invoke: func(context.Context, map[string]any) (tools.Result, error) {
			return tools.Errorf("cost query failed: AccessDeniedException: not authorized to perform ce:GetCostAndUsage"), nil
		},
	}
	wrapped := Wrap(failing, gates)

	res, err := wrapped.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text, "IAM permission error")
	assert.Contains(t, res.Text, "Do not retry")
}
