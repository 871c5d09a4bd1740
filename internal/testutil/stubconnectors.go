package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/optimnow-labs/finops-assistant/internal/agent"
	"github.com/optimnow-labs/finops-assistant/internal/connectors/aws/cloudwatch"
	"github.com/optimnow-labs/finops-assistant/internal/connectors/aws/costexplorer"
)

// StubCost satisfies tools.CostAPI from JSON fixtures so the assistant runs
// without AWS credentials.
type StubCost struct {
	FixturesDir string
}

func (s *StubCost) load(name string, target any) error {
	data, err := os.ReadFile(filepath.Join(s.FixturesDir, name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func (s *StubCost) GetCostAndUsage(_ context.Context, _ costexplorer.CostQuery) (map[string]any, error) {
	var m map[string]any
	err := s.load("cost_and_usage.json", &m)
	return m, err
}

func (s *StubCost) GetCostForecast(_ context.Context, _, _, _ string) (map[string]any, error) {
	var m map[string]any
	err := s.load("cost_forecast.json", &m)
	return m, err
}

func (s *StubCost) GetDimensionValues(_ context.Context, _, _, _ string) ([]string, error) {
	var values []string
	err := s.load("dimension_values.json", &values)
	return values, err
}

// StubMetrics satisfies tools.MetricsAPI from JSON fixtures.
type StubMetrics struct {
	FixturesDir string
}

func (s *StubMetrics) ResourceMetrics(_ context.Context, _ cloudwatch.MetricQuery) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(s.FixturesDir, "resource_metrics.json"))
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// StubCUR satisfies tools.CURAPI from JSON fixtures.
type StubCUR struct {
	FixturesDir string
}

func (s *StubCUR) Query(_ context.Context, _ string) ([]map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(s.FixturesDir, "cur_rows.json"))
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *StubCUR) Table() string { return "stub_cur" }

// LoopbackStreamer is an offline stand-in for the model: it answers every
// request with a fixed acknowledgement and never calls tools.
type LoopbackStreamer struct{}

func (LoopbackStreamer) Stream(_ context.Context, req agent.Request) (*agent.Reply, error) {
	var lastUser string
	for _, m := range req.Messages {
		if m.Role == "user" && m.Text != "" {
			lastUser = m.Text
		}
	}
	text := fmt.Sprintf("Running in stub mode without a model. You said: %s", lastUser)
	if req.OnDelta != nil {
		req.OnDelta(text)
	}
	return &agent.Reply{Text: text, StopReason: "end_turn"}, nil
}

// GoldenDir resolves the repository's fixtures directory relative to this
// file, for tests and stub mode runs started from any working directory.
func GoldenDir() string {
	return filepath.Join(moduleRoot(), "fixtures")
}

func moduleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}
