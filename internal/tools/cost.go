package tools

import (
	"context"
	"time"

	"github.com/optimnow-labs/finops-assistant/internal/connectors/aws/costexplorer"
	"github.com/optimnow-labs/finops-assistant/internal/domain"
)

// CostAPI is the Cost Explorer surface the cost tools call.
type CostAPI interface {
	GetCostAndUsage(ctx context.Context, q costexplorer.CostQuery) (map[string]any, error)
	GetCostForecast(ctx context.Context, startDate, endDate, granularity string) (map[string]any, error)
	GetDimensionValues(ctx context.Context, dimension, startDate, endDate string) ([]string, error)
}

type costAndUsageParams struct {
	StartDate   string   `json:"start_date" jsonschema:"description=Inclusive start date in YYYY-MM-DD format"`
	EndDate     string   `json:"end_date" jsonschema:"description=Exclusive end date in YYYY-MM-DD format"`
	Granularity string   `json:"granularity,omitempty" jsonschema:"description=DAILY MONTHLY or HOURLY; defaults to DAILY,enum=DAILY,enum=MONTHLY,enum=HOURLY"`
	GroupBy     string   `json:"group_by,omitempty" jsonschema:"description=Dimension to group by such as SERVICE or LINKED_ACCOUNT"`
	Services    []string `json:"services,omitempty" jsonschema:"description=Restrict to these service names"`
	Accounts    []string `json:"accounts,omitempty" jsonschema:"description=Restrict to these linked account IDs"`
	Metrics     []string `json:"metrics,omitempty" jsonschema:"description=Cost metrics; defaults to UnblendedCost"`
}

type forecastParams struct {
	StartDate   string `json:"start_date" jsonschema:"description=Forecast window start in YYYY-MM-DD format; must be today or later"`
	EndDate     string `json:"end_date" jsonschema:"description=Forecast window end in YYYY-MM-DD format"`
	Granularity string `json:"granularity,omitempty" jsonschema:"description=DAILY or MONTHLY; defaults to DAILY,enum=DAILY,enum=MONTHLY"`
}

type dimensionParams struct {
	Dimension string `json:"dimension" jsonschema:"description=Dimension to enumerate such as SERVICE or LINKED_ACCOUNT or REGION"`
	StartDate string `json:"start_date,omitempty" jsonschema:"description=Window start in YYYY-MM-DD; defaults to 30 days ago"`
	EndDate   string `json:"end_date,omitempty" jsonschema:"description=Window end in YYYY-MM-DD; defaults to today"`
}

// CostTools builds the Cost Explorer tool set over the given API.
func CostTools(api CostAPI) []Tool {
	return []Tool{
		{
			Name:        "get_cost_and_usage",
			Description: "Query AWS cost and usage for a date range, optionally grouped by a dimension and filtered by service or account.",
			InputSchema: SchemaFor(&costAndUsageParams{}),
			Origin:      domain.OriginLocal,
			Invoke: func(ctx context.Context, args map[string]any) (Result, error) {
				var p costAndUsageParams
				if err := DecodeArgs(args, &p); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
				out, err := api.GetCostAndUsage(ctx, costexplorer.CostQuery{
					StartDate:   p.StartDate,
					EndDate:     p.EndDate,
					Granularity: p.Granularity,
					GroupBy:     p.GroupBy,
					Services:    p.Services,
					Accounts:    p.Accounts,
					Metrics:     p.Metrics,
				})
				if err != nil {
					return Errorf("cost query failed: %v", err), nil
				}
				return JSONResult(out)
			},
		},
		{
			Name:        "get_cost_forecast",
			Description: "Forecast AWS spend for a future date range with confidence bounds.",
			InputSchema: SchemaFor(&forecastParams{}),
			Origin:      domain.OriginLocal,
			Invoke: func(ctx context.Context, args map[string]any) (Result, error) {
				var p forecastParams
				if err := DecodeArgs(args, &p); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
				out, err := api.GetCostForecast(ctx, p.StartDate, p.EndDate, p.Granularity)
				if err != nil {
					return Errorf("forecast failed: %v", err), nil
				}
				return JSONResult(out)
			},
		},
		{
			Name:        "get_dimension_values",
			Description: "List the distinct values of a cost dimension (services, linked accounts, regions) active in a date range.",
			InputSchema: SchemaFor(&dimensionParams{}),
			Origin:      domain.OriginLocal,
			Invoke: func(ctx context.Context, args map[string]any) (Result, error) {
				var p dimensionParams
				if err := DecodeArgs(args, &p); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
				if p.Dimension == "" {
					return Errorf("dimension is required"), nil
				}
				start, end := p.StartDate, p.EndDate
				if start == "" || end == "" {
					now := time.Now().UTC()
					end = now.Format("2006-01-02")
					start = now.AddDate(0, 0, -30).Format("2006-01-02")
				}
				values, err := api.GetDimensionValues(ctx, p.Dimension, start, end)
				if err != nil {
					return Errorf("dimension lookup failed: %v", err), nil
				}
				return JSONResult(map[string]any{
					"dimension": p.Dimension,
					"values":    values,
				})
			},
		},
	}
}
