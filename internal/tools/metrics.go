package tools

import (
	"context"

	"github.com/optimnow-labs/finops-assistant/internal/connectors/aws/cloudwatch"
	"github.com/optimnow-labs/finops-assistant/internal/domain"
)

// MetricsAPI is the CloudWatch surface the utilization tool calls.
type MetricsAPI interface {
	ResourceMetrics(ctx context.Context, q cloudwatch.MetricQuery) (map[string]any, error)
}

type resourceMetricsParams struct {
	ResourceID    string `json:"resource_id" jsonschema:"description=Resource identifier such as an EC2 instance ID"`
	MetricName    string `json:"metric_name" jsonschema:"description=CloudWatch metric name such as CPUUtilization"`
	Namespace     string `json:"namespace,omitempty" jsonschema:"description=CloudWatch namespace; defaults to AWS/EC2"`
	DimensionName string `json:"dimension_name,omitempty" jsonschema:"description=Dimension the resource ID matches; defaults to InstanceId"`
	Days          int    `json:"days,omitempty" jsonschema:"description=Lookback window in days; defaults to 14"`
}

// MetricsTools builds the utilization tool set over the given API.
func MetricsTools(api MetricsAPI) []Tool {
	return []Tool{
		{
			Name:        "get_resource_metrics",
			Description: "Fetch CloudWatch utilization metrics for a single resource to judge whether it is right-sized.",
			InputSchema: SchemaFor(&resourceMetricsParams{}),
			Origin:      domain.OriginLocal,
			Invoke: func(ctx context.Context, args map[string]any) (Result, error) {
				var p resourceMetricsParams
				if err := DecodeArgs(args, &p); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
				out, err := api.ResourceMetrics(ctx, cloudwatch.MetricQuery{
					Namespace:     p.Namespace,
					MetricName:    p.MetricName,
					DimensionName: p.DimensionName,
					ResourceID:    p.ResourceID,
					Days:          p.Days,
				})
				if err != nil {
					return Errorf("metric query failed: %v", err), nil
				}
				return JSONResult(out)
			},
		},
	}
}
