// Package costexplorer wraps the AWS Cost Explorer API behind the query
// shapes the assistant's cost tools expose to the model.
package costexplorer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
)

// API is the subset of the Cost Explorer client used by this package.
type API interface {
	GetCostAndUsage(ctx context.Context, params *ce.GetCostAndUsageInput, optFns ...func(*ce.Options)) (*ce.GetCostAndUsageOutput, error)
	GetCostForecast(ctx context.Context, params *ce.GetCostForecastInput, optFns ...func(*ce.Options)) (*ce.GetCostForecastOutput, error)
	GetDimensionValues(ctx context.Context, params *ce.GetDimensionValuesInput, optFns ...func(*ce.Options)) (*ce.GetDimensionValuesOutput, error)
}

// Client wraps the Cost Explorer API.
type Client struct {
	api API
}

// New creates a Cost Explorer client from an AWS config.
func New(cfg aws.Config) *Client {
	return &Client{api: ce.NewFromConfig(cfg)}
}

// NewFromAPI creates a Client from an explicit API implementation (for testing).
func NewFromAPI(api API) *Client {
	return &Client{api: api}
}

// CostQuery describes a cost-and-usage request. Zero values get sensible
// defaults: DAILY granularity and the UnblendedCost metric.
type CostQuery struct {
	StartDate   string
	EndDate     string
	Granularity string // DAILY, MONTHLY or HOURLY
	Metrics     []string
	// GroupBy is a dimension key such as SERVICE or LINKED_ACCOUNT.
	GroupBy string
	// Services filters results to the named services when non-empty.
	Services []string
	// Accounts filters results to the named linked accounts when non-empty.
	Accounts []string
}

// GetCostAndUsage runs a cost-and-usage query and returns a flat,
// JSON-friendly shape:
// {"granularity": string, "metrics": []string, "results": []map[string]any}
func (c *Client) GetCostAndUsage(ctx context.Context, q CostQuery) (map[string]any, error) {
	gran, err := parseGranularity(q.Granularity)
	if err != nil {
		return nil, err
	}
	metrics := q.Metrics
	if len(metrics) == 0 {
		metrics = []string{"UnblendedCost"}
	}

	input := &ce.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(q.StartDate),
			End:   aws.String(q.EndDate),
		},
		Granularity: gran,
		Metrics:     metrics,
		Filter:      buildFilter(q),
	}
	if q.GroupBy != "" {
		input.GroupBy = []cetypes.GroupDefinition{{
			Type: cetypes.GroupDefinitionTypeDimension,
			Key:  aws.String(q.GroupBy),
		}}
	}

	out, err := c.api.GetCostAndUsage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("costexplorer: get cost and usage: %w", err)
	}
	return transformCostAndUsage(out, string(gran), metrics), nil
}

// GetCostForecast predicts spend for a future window:
// {"total": float64, "unit": string, "points": []map[string]any}
func (c *Client) GetCostForecast(ctx context.Context, startDate, endDate, granularity string) (map[string]any, error) {
	gran, err := parseGranularity(granularity)
	if err != nil {
		return nil, err
	}
	if gran == cetypes.GranularityHourly {
		return nil, fmt.Errorf("costexplorer: forecast granularity must be DAILY or MONTHLY")
	}

	out, err := c.api.GetCostForecast(ctx, &ce.GetCostForecastInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startDate),
			End:   aws.String(endDate),
		},
		Granularity: gran,
		Metric:      cetypes.MetricUnblendedCost,
	})
	if err != nil {
		return nil, fmt.Errorf("costexplorer: get cost forecast: %w", err)
	}
	return transformForecast(out), nil
}

// GetDimensionValues lists the distinct values of a dimension (SERVICE,
// LINKED_ACCOUNT, REGION, ...) seen in the given window.
func (c *Client) GetDimensionValues(ctx context.Context, dimension, startDate, endDate string) ([]string, error) {
	out, err := c.api.GetDimensionValues(ctx, &ce.GetDimensionValuesInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startDate),
			End:   aws.String(endDate),
		},
		Dimension: cetypes.Dimension(dimension),
	})
	if err != nil {
		return nil, fmt.Errorf("costexplorer: get dimension values %s: %w", dimension, err)
	}

	values := make([]string, 0, len(out.DimensionValues))
	for _, dv := range out.DimensionValues {
		if dv.Value != nil {
			values = append(values, *dv.Value)
		}
	}
	return values, nil
}

func parseGranularity(g string) (cetypes.Granularity, error) {
	switch g {
	case "", "DAILY":
		return cetypes.GranularityDaily, nil
	case "MONTHLY":
		return cetypes.GranularityMonthly, nil
	case "HOURLY":
		return cetypes.GranularityHourly, nil
	}
	return "", fmt.Errorf("costexplorer: unsupported granularity %q", g)
}

func buildFilter(q CostQuery) *cetypes.Expression {
	var exprs []cetypes.Expression
	if len(q.Services) > 0 {
		exprs = append(exprs, cetypes.Expression{Dimensions: &cetypes.DimensionValues{
			Key:    cetypes.DimensionService,
			Values: q.Services,
		}})
	}
	if len(q.Accounts) > 0 {
		exprs = append(exprs, cetypes.Expression{Dimensions: &cetypes.DimensionValues{
			Key:    cetypes.DimensionLinkedAccount,
			Values: q.Accounts,
		}})
	}
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return &exprs[0]
	}
	return &cetypes.Expression{And: exprs}
}
