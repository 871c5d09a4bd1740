package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimnow-labs/finops-assistant/internal/agent"
	"github.com/optimnow-labs/finops-assistant/internal/agui"
	"github.com/optimnow-labs/finops-assistant/internal/api"
	"github.com/optimnow-labs/finops-assistant/internal/config"
	"github.com/optimnow-labs/finops-assistant/internal/consent"
	"github.com/optimnow-labs/finops-assistant/internal/domain"
	"github.com/optimnow-labs/finops-assistant/internal/mcpclient"
	"github.com/optimnow-labs/finops-assistant/internal/policy"
	"github.com/optimnow-labs/finops-assistant/internal/ratelimit"
	"github.com/optimnow-labs/finops-assistant/internal/testutil"
	"github.com/optimnow-labs/finops-assistant/internal/tools"
)

type testEnv struct {
	ts *httptest.Server
}

func testConfig() config.Config {
	return config.Config{
		CORSOrigins:    []string{"*"},
		ConsentTimeout: 2 * time.Second,
		MaxTurns:       5,
	}
}

func newTestEnv(t *testing.T, registry *testutil.StubRegistry, streamer agent.MessageStreamer) testEnv {
	t.Helper()
	srv := api.New(testConfig(), api.Deps{
		Registry:   registry,
		Streamer:   streamer,
		Classifier: consent.NewClassifier(false),
		Guard:      policy.NewGuard(nil),
		Broker:     agui.NewBroker(slog.Default()),
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return testEnv{ts: ts}
}

// blockingStreamer holds every run open until released.
type blockingStreamer struct {
	release chan struct{}
}

func (b *blockingStreamer) Stream(ctx context.Context, _ agent.Request) (*agent.Reply, error) {
	select {
	case <-b.release:
		return &agent.Reply{Text: "done", StopReason: "end_turn"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		SessionID string `json:"session_id"`
		Registry  string `json:"registry"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.SessionID)
	require.NotEmpty(t, body.Registry)
	return body.SessionID
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

// openStream connects to the session SSE endpoint and feeds event type
// names to the returned channel.
func openStream(t *testing.T, ts *httptest.Server, sessionID string) <-chan string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/sessions/"+sessionID+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() { resp.Body.Close() })

	ch := make(chan string, 64)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "event: ") {
				ch <- strings.TrimPrefix(line, "event: ")
			}
		}
	}()
	return ch
}

func waitForEvent(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case typ, ok := <-ch:
			require.True(t, ok, "stream closed before %s", want)
			if typ == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testutil.NewStubRegistry(), testutil.NewScriptedStreamer())

	resp, err := http.Get(env.ts.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ready", body["registry"])
}

func TestListTools_Sorted(t *testing.T) {
	env := newTestEnv(t,
		testutil.NewStubRegistry(testutil.EchoTool("zeta"), testutil.EchoTool("alpha")),
		testutil.NewScriptedStreamer())

	resp, err := http.Get(env.ts.URL + "/api/v1/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Tools []struct {
			Name   string `json:"name"`
			Origin string `json:"origin"`
		} `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Tools, 2)
	assert.Equal(t, "alpha", body.Tools[0].Name)
	assert.Equal(t, "zeta", body.Tools[1].Name)
	assert.Equal(t, "local", body.Tools[0].Origin)
}

func TestRegistryEndpoint(t *testing.T) {
	registry := testutil.NewStubRegistry(testutil.EchoTool("echo"))
	registry.RegistryState = domain.RegistryDegraded
	registry.Connected = []string{"billing"}
	registry.Declared = []mcpclient.ServerDescriptor{
		{Name: "billing", Command: "mcp-billing"},
		{Name: "broken", Command: "mcp-broken"},
	}
	env := newTestEnv(t, registry, testutil.NewScriptedStreamer())

	resp, err := http.Get(env.ts.URL + "/api/v1/registry")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		State   string `json:"state"`
		Usable  bool   `json:"usable"`
		Servers []struct {
			Name      string `json:"name"`
			Connected bool   `json:"connected"`
		} `json:"servers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body.State)
	assert.True(t, body.Usable)
	require.Len(t, body.Servers, 2)
	assert.True(t, body.Servers[0].Connected)
	assert.False(t, body.Servers[1].Connected)
}

func TestGetSession_NotFound(t *testing.T) {
	env := newTestEnv(t, testutil.NewStubRegistry(), testutil.NewScriptedStreamer())

	resp, err := http.Get(env.ts.URL + "/api/v1/sessions/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostMessage_Validation(t *testing.T) {
	env := newTestEnv(t, testutil.NewStubRegistry(), testutil.NewScriptedStreamer())
	id := createSession(t, env.ts)

	resp := postJSON(t, env.ts.URL+"/api/v1/sessions/"+id+"/messages", map[string]string{"content": "  "})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := postJSON(t, env.ts.URL+"/api/v1/sessions/unknown/messages", map[string]string{"content": "hi"})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestPostMessage_RegistryNotReady(t *testing.T) {
	registry := testutil.NewStubRegistry()
	registry.RegistryState = domain.RegistryInitializing
	env := newTestEnv(t, registry, testutil.NewScriptedStreamer())
	id := createSession(t, env.ts)

	resp := postJSON(t, env.ts.URL+"/api/v1/sessions/"+id+"/messages", map[string]string{"content": "hi"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPostMessage_RunsAndAppendsHistory(t *testing.T) {
	streamer := testutil.NewScriptedStreamer(agent.Reply{
		Text: "You spent $42 last month.", StopReason: "end_turn",
		InputTokens: 100, OutputTokens: 20,
	})
	env := newTestEnv(t, testutil.NewStubRegistry(), streamer)
	id := createSession(t, env.ts)
	events := openStream(t, env.ts, id)

	resp := postJSON(t, env.ts.URL+"/api/v1/sessions/"+id+"/messages", map[string]string{"content": "what did I spend?"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitForEvent(t, events, "RUN_STARTED")
	waitForEvent(t, events, "TEXT_MESSAGE_CONTENT")
	waitForEvent(t, events, "RUN_FINISHED")

	var session struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	require.Eventually(t, func() bool {
		getResp, err := http.Get(env.ts.URL + "/api/v1/sessions/" + id)
		if err != nil {
			return false
		}
		defer getResp.Body.Close()
		if err := json.NewDecoder(getResp.Body).Decode(&session); err != nil {
			return false
		}
		return len(session.Messages) == 2
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "user", session.Messages[0].Role)
	assert.Equal(t, "what did I spend?", session.Messages[0].Content)
	assert.Equal(t, "assistant", session.Messages[1].Role)
	assert.Contains(t, session.Messages[1].Content, "$42")
}

func TestPostMessage_ConcurrentRunRejected(t *testing.T) {
	streamer := &blockingStreamer{release: make(chan struct{})}
	env := newTestEnv(t, testutil.NewStubRegistry(), streamer)
	id := createSession(t, env.ts)
	events := openStream(t, env.ts, id)

	resp := postJSON(t, env.ts.URL+"/api/v1/sessions/"+id+"/messages", map[string]string{"content": "first"})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	waitForEvent(t, events, "RUN_STARTED")

	resp2 := postJSON(t, env.ts.URL+"/api/v1/sessions/"+id+"/messages", map[string]string{"content": "second"})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)

	close(streamer.release)
	waitForEvent(t, events, "RUN_FINISHED")
}

func TestPostMessage_BudgetExhausted(t *testing.T) {
	budget := ratelimit.NewUsageBudget(10, 0, time.Hour)
	broker := agui.NewBroker(slog.Default())
	srv := api.New(testConfig(), api.Deps{
		Registry:   testutil.NewStubRegistry(),
		Streamer:   testutil.NewScriptedStreamer(),
		Classifier: consent.NewClassifier(false),
		Guard:      policy.NewGuard(nil),
		Broker:     broker,
		Budget:     budget,
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	id := createSession(t, ts)
	budget.Record(id, 100, 0.50)

	resp := postJSON(t, ts.URL+"/api/v1/sessions/"+id+"/messages", map[string]string{"content": "hi"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestConsent_NoPendingRequest(t *testing.T) {
	env := newTestEnv(t, testutil.NewStubRegistry(), testutil.NewScriptedStreamer())
	id := createSession(t, env.ts)

	resp := postJSON(t, env.ts.URL+"/api/v1/sessions/"+id+"/consent", map[string]string{"reply": "yes"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConsentRoundTrip_ApprovedMutation(t *testing.T) {
	var invocations atomic.Int64
	awsTool := tools.Tool{
		Name:        "call_aws",
		Description: "runs an AWS CLI command",
		InputSchema: map[string]any{"type": "object"},
		Origin:      domain.OriginLocal,
		Invoke: func(_ context.Context, _ map[string]any) (tools.Result, error) {
			invocations.Add(1)
			return tools.TextResult("stack deletion started"), nil
		},
	}

	streamer := testutil.NewScriptedStreamer(
		agent.Reply{
			StopReason: "tool_use",
			ToolCalls: []agent.ToolCall{{
				ID: "tu-1", Name: "call_aws",
				Input: map[string]any{"command": "aws cloudformation delete-stack --stack-name legacy"},
			}},
			InputTokens: 100, OutputTokens: 30,
		},
		agent.Reply{
			Text: "Done. The stack deletion was started.", StopReason: "end_turn",
			InputTokens: 150, OutputTokens: 20,
		},
	)
	env := newTestEnv(t, testutil.NewStubRegistry(awsTool), streamer)
	id := createSession(t, env.ts)
	events := openStream(t, env.ts, id)

	resp := postJSON(t, env.ts.URL+"/api/v1/sessions/"+id+"/messages",
		map[string]string{"content": "delete the legacy stack"})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitForEvent(t, events, "CONSENT_REQUESTED")
	assert.Equal(t, int64(0), invocations.Load())

	consentResp := postJSON(t, env.ts.URL+"/api/v1/sessions/"+id+"/consent", map[string]string{"reply": "yes"})
	consentResp.Body.Close()
	require.Equal(t, http.StatusOK, consentResp.StatusCode)

	waitForEvent(t, events, "CONSENT_RESOLVED")
	waitForEvent(t, events, "RUN_FINISHED")
	assert.Equal(t, int64(1), invocations.Load())
}

func TestConsentRoundTrip_TimeoutBlocksInvocation(t *testing.T) {
	var invocations atomic.Int64
	awsTool := tools.Tool{
		Name:        "call_aws",
		Description: "runs an AWS CLI command",
		InputSchema: map[string]any{"type": "object"},
		Origin:      domain.OriginLocal,
		Invoke: func(_ context.Context, _ map[string]any) (tools.Result, error) {
			invocations.Add(1)
			return tools.TextResult("ok"), nil
		},
	}

	streamer := testutil.NewScriptedStreamer(
		agent.Reply{
			StopReason: "tool_use",
			ToolCalls: []agent.ToolCall{{
				ID: "tu-1", Name: "call_aws",
				Input: map[string]any{"command": "aws ec2 terminate-instances --instance-ids i-1"},
			}},
		},
		agent.Reply{Text: "The approval window expired, so nothing was changed.", StopReason: "end_turn"},
	)
	env := newTestEnv(t, testutil.NewStubRegistry(awsTool), streamer)
	id := createSession(t, env.ts)
	events := openStream(t, env.ts, id)

	resp := postJSON(t, env.ts.URL+"/api/v1/sessions/"+id+"/messages",
		map[string]string{"content": "terminate i-1"})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitForEvent(t, events, "CONSENT_REQUESTED")
	// Never reply; the gate times out after the configured 2s.
	waitForEvent(t, events, "RUN_FINISHED")
	assert.Equal(t, int64(0), invocations.Load())
}
