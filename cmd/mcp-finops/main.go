// Command mcp-finops serves the assistant's local FinOps tools over MCP
// stdio, so external AI hosts can query cost data directly.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/optimnow-labs/finops-assistant/internal/config"
	awsconn "github.com/optimnow-labs/finops-assistant/internal/connectors/aws"
	"github.com/optimnow-labs/finops-assistant/internal/connectors/aws/athena"
	"github.com/optimnow-labs/finops-assistant/internal/connectors/aws/cloudwatch"
	"github.com/optimnow-labs/finops-assistant/internal/connectors/aws/costexplorer"
	"github.com/optimnow-labs/finops-assistant/internal/mcpserver"
	"github.com/optimnow-labs/finops-assistant/internal/testutil"
	"github.com/optimnow-labs/finops-assistant/internal/tools"
)

func main() {
	// Stdout carries the MCP protocol; logs must go to stderr.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	toolSet, err := buildTools(ctx, cfg)
	if err != nil {
		log.Fatalf("tool init failed: %v", err)
	}
	toolSet = append(toolSet, tools.ChartTools(
		tools.NewVLConvertRenderer(cfg.VLConvertPath), cfg.OutputDir)...)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "finops-assistant",
		Version: "v1.0.0",
	}, nil)
	if err := mcpserver.RegisterTools(server, toolSet); err != nil {
		log.Fatalf("register tools: %v", err)
	}

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}

func buildTools(ctx context.Context, cfg config.Config) ([]tools.Tool, error) {
	if cfg.Mode == config.ModeStub {
		fixturesDir := cfg.FixturesDir
		if fixturesDir == "" {
			fixturesDir = testutil.GoldenDir()
		}
		var toolSet []tools.Tool
		toolSet = append(toolSet, tools.CostTools(&testutil.StubCost{FixturesDir: fixturesDir})...)
		toolSet = append(toolSet, tools.MetricsTools(&testutil.StubMetrics{FixturesDir: fixturesDir})...)
		toolSet = append(toolSet, tools.CURTools(&testutil.StubCUR{FixturesDir: fixturesDir})...)
		return toolSet, nil
	}

	awsCfg, err := awsconn.NewAWSConfig(ctx, cfg.AWSRegion, cfg.AWSProfile, cfg.CrossAccountRole)
	if err != nil {
		return nil, err
	}

	var toolSet []tools.Tool
	toolSet = append(toolSet, tools.CostTools(costexplorer.New(awsCfg))...)
	toolSet = append(toolSet, tools.MetricsTools(cloudwatch.New(awsCfg))...)
	if cfg.CURConfigured() {
		querier := athena.New(awsCfg, cfg.CURDatabase, cfg.CURTable, cfg.CURWorkgroup,
			"s3://"+cfg.CUROutputBucket+"/athena-results/")
		toolSet = append(toolSet, tools.CURTools(querier)...)
	}
	return toolSet, nil
}
