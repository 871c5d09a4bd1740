// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode determines whether the assistant uses stub fixtures or real AWS connectors.
type Mode string

const (
	ModeStub       Mode = "stub"
	ModeProduction Mode = "production"
)

// Config holds all application configuration.
type Config struct {
	Mode        Mode
	FixturesDir string
	LogLevel    string
	OTelEnabled bool

	AWSRegion        string
	AWSProfile       string
	CrossAccountRole string

	// LLM settings.
	ModelID   string
	MaxTokens int
	MaxTurns  int

	// Tool-server registry settings.
	MCPConfigPath    string
	HandshakeTimeout time.Duration

	// Consent settings.
	ConsentTimeout time.Duration
	StrictConsent  bool // ambiguous commands require consent instead of passing through

	// Per-session model spend caps; zero disables a cap.
	BudgetMaxTokens  int
	BudgetMaxCostUSD float64
	BudgetWindow     time.Duration

	// CUR query settings (Athena).
	CURDatabase     string
	CURTable        string
	CURWorkgroup    string
	CUROutputBucket string

	// Visual tool settings.
	OutputDir     string
	VLConvertPath string

	// API server settings.
	APIPort      string
	CORSOrigins  []string
	OIDCIssuer   string
	OIDCAudience string
}

// LoadFromEnv reads configuration from environment variables with sensible defaults.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Mode:             Mode(envOr("ASSISTANT_MODE", "stub")),
		FixturesDir:      os.Getenv("FIXTURES_DIR"),
		LogLevel:         envOr("ASSISTANT_LOG_LEVEL", "info"),
		OTelEnabled:      envBool("ASSISTANT_OTEL_ENABLED", false),
		AWSRegion:        envOr("AWS_REGION", "us-east-1"),
		AWSProfile:       os.Getenv("AWS_PROFILE"),
		CrossAccountRole: os.Getenv("ASSISTANT_CROSS_ACCOUNT_ROLE"),
		ModelID:          envOr("ASSISTANT_MODEL_ID", "anthropic.claude-3-5-sonnet-20241022-v2:0"),
		MaxTokens:        envInt("ASSISTANT_MAX_TOKENS", 4096),
		MaxTurns:         envInt("ASSISTANT_MAX_TURNS", 25),
		MCPConfigPath:    os.Getenv("ASSISTANT_MCP_CONFIG"),
		HandshakeTimeout: envSeconds("ASSISTANT_HANDSHAKE_TIMEOUT_SECONDS", 60),
		ConsentTimeout:   envSeconds("ASSISTANT_CONSENT_TIMEOUT_SECONDS", 60),
		StrictConsent:    envBool("ASSISTANT_STRICT_CONSENT", false),
		BudgetMaxTokens:  envInt("ASSISTANT_BUDGET_MAX_TOKENS", 0),
		BudgetMaxCostUSD: envFloat("ASSISTANT_BUDGET_MAX_COST_USD", 0),
		BudgetWindow:     time.Duration(envInt("ASSISTANT_BUDGET_WINDOW_HOURS", 24)) * time.Hour,
		CURDatabase:      os.Getenv("ASSISTANT_CUR_DATABASE"),
		CURTable:         os.Getenv("ASSISTANT_CUR_TABLE"),
		CURWorkgroup:     envOr("ASSISTANT_CUR_WORKGROUP", "primary"),
		CUROutputBucket:  os.Getenv("ASSISTANT_CUR_OUTPUT_BUCKET"),
		OutputDir:        envOr("ASSISTANT_OUTPUT_DIR", "outputs"),
		VLConvertPath:    envOr("ASSISTANT_VL_CONVERT", "vl-convert"),
		APIPort:          envOr("ASSISTANT_API_PORT", "8080"),
		CORSOrigins:      parseCORSOrigins(os.Getenv("ASSISTANT_CORS_ORIGINS")),
		OIDCIssuer:       os.Getenv("ASSISTANT_OIDC_ISSUER"),
		OIDCAudience:     os.Getenv("ASSISTANT_OIDC_AUDIENCE"),
	}

	if cfg.Mode != ModeStub && cfg.Mode != ModeProduction {
		return Config{}, fmt.Errorf("config: invalid ASSISTANT_MODE %q (must be stub or production)", cfg.Mode)
	}

	if cfg.ConsentTimeout <= 0 {
		return Config{}, fmt.Errorf("config: ASSISTANT_CONSENT_TIMEOUT_SECONDS must be positive")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("config: ASSISTANT_HANDSHAKE_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

// OIDCEnabled reports whether bearer auth should be enforced on the API.
func (c Config) OIDCEnabled() bool {
	return c.OIDCIssuer != "" && c.OIDCAudience != ""
}

// CURConfigured reports whether Athena CUR queries are available.
func (c Config) CURConfigured() bool {
	return c.CURDatabase != "" && c.CURTable != "" && c.CUROutputBucket != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}

func parseCORSOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(o); t != "" {
			origins = append(origins, t)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
