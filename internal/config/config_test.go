package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeStub, cfg.Mode)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, 60*time.Second, cfg.ConsentTimeout)
	assert.Equal(t, 60*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, "primary", cfg.CURWorkgroup)
	assert.False(t, cfg.StrictConsent)
	assert.False(t, cfg.OIDCEnabled())
	assert.False(t, cfg.CURConfigured())
	assert.Equal(t, 0, cfg.BudgetMaxTokens)
	assert.Equal(t, 0.0, cfg.BudgetMaxCostUSD)
	assert.Equal(t, 24*time.Hour, cfg.BudgetWindow)
}

func TestLoadFromEnv_BudgetOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSISTANT_BUDGET_MAX_TOKENS", "500000")
	t.Setenv("ASSISTANT_BUDGET_MAX_COST_USD", "2.50")
	t.Setenv("ASSISTANT_BUDGET_WINDOW_HOURS", "6")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 500000, cfg.BudgetMaxTokens)
	assert.Equal(t, 2.50, cfg.BudgetMaxCostUSD)
	assert.Equal(t, 6*time.Hour, cfg.BudgetWindow)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSISTANT_MODE", "production")
	t.Setenv("ASSISTANT_MCP_CONFIG", "/etc/assistant/mcp.json")
	t.Setenv("ASSISTANT_CONSENT_TIMEOUT_SECONDS", "30")
	t.Setenv("ASSISTANT_STRICT_CONSENT", "true")
	t.Setenv("ASSISTANT_CUR_DATABASE", "cur_db")
	t.Setenv("ASSISTANT_CUR_TABLE", "cur_table")
	t.Setenv("ASSISTANT_CUR_OUTPUT_BUCKET", "s3://cur-output")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, cfg.Mode)
	assert.Equal(t, "/etc/assistant/mcp.json", cfg.MCPConfigPath)
	assert.Equal(t, 30*time.Second, cfg.ConsentTimeout)
	assert.True(t, cfg.StrictConsent)
	assert.True(t, cfg.CURConfigured())
}

func TestLoadFromEnv_InvalidMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSISTANT_MODE", "invalid")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ASSISTANT_MODE")
}

func TestLoadFromEnv_ZeroTimeoutRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSISTANT_CONSENT_TIMEOUT_SECONDS", "0")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONSENT_TIMEOUT")
}

func TestOIDCEnabled(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSISTANT_OIDC_ISSUER", "https://issuer.example.com")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.OIDCEnabled(), "issuer without audience must not enable auth")

	t.Setenv("ASSISTANT_OIDC_AUDIENCE", "finops-assistant")
	cfg, err = LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.OIDCEnabled())
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ASSISTANT_MODE", "FIXTURES_DIR", "AWS_REGION", "AWS_PROFILE",
		"ASSISTANT_CROSS_ACCOUNT_ROLE", "ASSISTANT_MODEL_ID", "ASSISTANT_MCP_CONFIG",
		"ASSISTANT_HANDSHAKE_TIMEOUT_SECONDS", "ASSISTANT_CONSENT_TIMEOUT_SECONDS",
		"ASSISTANT_STRICT_CONSENT", "ASSISTANT_CUR_DATABASE", "ASSISTANT_CUR_TABLE",
		"ASSISTANT_CUR_WORKGROUP", "ASSISTANT_CUR_OUTPUT_BUCKET",
		"ASSISTANT_OIDC_ISSUER", "ASSISTANT_OIDC_AUDIENCE",
		"ASSISTANT_BUDGET_MAX_TOKENS", "ASSISTANT_BUDGET_MAX_COST_USD",
		"ASSISTANT_BUDGET_WINDOW_HOURS",
	} {
		if orig, wasSet := os.LookupEnv(key); wasSet {
			t.Setenv(key, orig) // register restore
		}
		os.Unsetenv(key)
	}
}
