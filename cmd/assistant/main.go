// Command assistant runs the FinOps chat API: the tool registry, the agent
// run loop over Bedrock, and the HTTP/SSE surface.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/optimnow-labs/finops-assistant/internal/agent"
	"github.com/optimnow-labs/finops-assistant/internal/agui"
	"github.com/optimnow-labs/finops-assistant/internal/api"
	"github.com/optimnow-labs/finops-assistant/internal/config"
	awsconn "github.com/optimnow-labs/finops-assistant/internal/connectors/aws"
	"github.com/optimnow-labs/finops-assistant/internal/connectors/aws/athena"
	"github.com/optimnow-labs/finops-assistant/internal/connectors/aws/cloudwatch"
	"github.com/optimnow-labs/finops-assistant/internal/connectors/aws/costexplorer"
	"github.com/optimnow-labs/finops-assistant/internal/connectors/aws/tagging"
	"github.com/optimnow-labs/finops-assistant/internal/consent"
	"github.com/optimnow-labs/finops-assistant/internal/mcpclient"
	"github.com/optimnow-labs/finops-assistant/internal/observability"
	"github.com/optimnow-labs/finops-assistant/internal/policy"
	"github.com/optimnow-labs/finops-assistant/internal/ratelimit"
	"github.com/optimnow-labs/finops-assistant/internal/testutil"
	"github.com/optimnow-labs/finops-assistant/internal/tools"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(cfg.LogLevel)
	ctx := context.Background()

	if cfg.OTelEnabled {
		shutdown, err := observability.InitTracer(ctx, "finops-assistant", string(cfg.Mode))
		if err != nil {
			logger.Error("otel init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Warn("metrics init failed, continuing without", "error", err)
		metrics = nil
	}

	localTools, streamer, guard, err := buildStack(ctx, cfg, logger)
	if err != nil {
		logger.Error("stack init failed", "error", err)
		os.Exit(1)
	}
	localTools = append(localTools, tools.ChartTools(
		tools.NewVLConvertRenderer(cfg.VLConvertPath), cfg.OutputDir)...)

	var descriptors []mcpclient.ServerDescriptor
	if cfg.MCPConfigPath != "" {
		descriptors, err = mcpclient.LoadRegistry(cfg.MCPConfigPath)
		if err != nil {
			logger.Error("tool server registry config invalid", "error", err)
			os.Exit(1)
		}
	}

	registry := mcpclient.NewService(descriptors, mcpclient.NewSDKDialer(cfg.HandshakeTimeout), localTools)
	go func() {
		if err := registry.Initialize(ctx); err != nil {
			logger.Error("registry initialization failed", "error", err)
		}
		logger.Info("registry initialized",
			"state", string(registry.State()), "servers", registry.ConnectedServers())
	}()

	var budget *ratelimit.UsageBudget
	if cfg.BudgetMaxTokens > 0 || cfg.BudgetMaxCostUSD > 0 {
		budget = ratelimit.NewUsageBudget(int64(cfg.BudgetMaxTokens), cfg.BudgetMaxCostUSD, cfg.BudgetWindow)
	}

	var provider *oidc.Provider
	if cfg.OIDCEnabled() {
		provider, err = oidc.NewProvider(ctx, cfg.OIDCIssuer)
		if err != nil {
			logger.Error("oidc discovery failed", "issuer", cfg.OIDCIssuer, "error", err)
			os.Exit(1)
		}
	}

	srv := api.New(cfg, api.Deps{
		Registry:   registry,
		Streamer:   streamer,
		Classifier: consent.NewClassifier(cfg.StrictConsent),
		Guard:      guard,
		Broker:     agui.NewBroker(logger),
		Budget:     budget,
		Metrics:    metrics,
		Logger:     logger,
		OIDC:       provider,
	})

	var handler http.Handler = srv
	if cfg.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "finops-assistant")
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server",
			"addr", httpServer.Addr, "mode", string(cfg.Mode), "oidc_enabled", cfg.OIDCEnabled())
		errCh <- httpServer.ListenAndServe()
	}()

	stop, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	select {
	case <-stop.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	registry.Shutdown()
}

// buildStack assembles the data connectors, the model streamer, and the
// policy guard for the configured mode.
func buildStack(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]tools.Tool, agent.MessageStreamer, *policy.Guard, error) {
	if cfg.Mode == config.ModeStub {
		fixturesDir := cfg.FixturesDir
		if fixturesDir == "" {
			fixturesDir = testutil.GoldenDir()
		}
		logger.Info("stub mode: using fixture connectors", "fixtures", fixturesDir)

		var localTools []tools.Tool
		localTools = append(localTools, tools.CostTools(&testutil.StubCost{FixturesDir: fixturesDir})...)
		localTools = append(localTools, tools.MetricsTools(&testutil.StubMetrics{FixturesDir: fixturesDir})...)
		localTools = append(localTools, tools.CURTools(&testutil.StubCUR{FixturesDir: fixturesDir})...)
		return localTools, testutil.LoopbackStreamer{}, policy.NewGuard(nil), nil
	}

	awsCfg, err := awsconn.NewAWSConfig(ctx, cfg.AWSRegion, cfg.AWSProfile, cfg.CrossAccountRole)
	if err != nil {
		return nil, nil, nil, err
	}
	identity, err := awsconn.CallerIdentity(ctx, awsCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("aws identity resolved", "account", identity.AccountID, "arn", identity.ARN)

	var localTools []tools.Tool
	localTools = append(localTools, tools.CostTools(costexplorer.New(awsCfg))...)
	localTools = append(localTools, tools.MetricsTools(cloudwatch.New(awsCfg))...)

	if cfg.CURConfigured() {
		querier := athena.New(awsCfg, cfg.CURDatabase, cfg.CURTable, cfg.CURWorkgroup,
			"s3://"+cfg.CUROutputBucket+"/athena-results/")
		localTools = append(localTools, tools.CURTools(querier)...)
	} else {
		logger.Info("CUR queries disabled: database, table, or output bucket not configured")
	}

	brc := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		o.RetryMode = aws.RetryModeAdaptive
		o.RetryMaxAttempts = 5
	})
	localTools = append(localTools, tools.ImageTools(brc, cfg.OutputDir)...)

	limiter := ratelimit.NewServiceLimiter(ratelimit.DefaultServiceRates())
	streamer := agent.NewBedrockStreamer(brc, cfg.ModelID, int32(cfg.MaxTokens), limiter.Limiter("Bedrock"))

	guard := policy.NewGuard(tagging.New(awsCfg))
	return localTools, streamer, guard, nil
}
