// Package cloudwatch wraps the AWS CloudWatch API behind the metric query
// shape the assistant's utilization tool exposes to the model.
package cloudwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cw "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// API is the subset of the CloudWatch client used by this package.
type API interface {
	GetMetricStatistics(ctx context.Context, params *cw.GetMetricStatisticsInput, optFns ...func(*cw.Options)) (*cw.GetMetricStatisticsOutput, error)
}

// Client wraps the CloudWatch API.
type Client struct {
	api API
}

// New creates a CloudWatch client from an AWS config.
func New(cfg aws.Config) *Client {
	return &Client{api: cw.NewFromConfig(cfg)}
}

// NewFromAPI creates a Client from an explicit API implementation (for testing).
func NewFromAPI(api API) *Client {
	return &Client{api: api}
}

// MetricQuery describes a single-resource metric request. Zero values get
// sensible defaults: AWS/EC2 namespace, InstanceId dimension, a 14-day
// window at a 1-hour period.
type MetricQuery struct {
	Namespace     string
	MetricName    string
	DimensionName string
	ResourceID    string
	// Days bounds the lookback window ending now.
	Days int
	// PeriodSeconds is the datapoint resolution.
	PeriodSeconds int32
}

func (q *MetricQuery) applyDefaults() {
	if q.Namespace == "" {
		q.Namespace = "AWS/EC2"
	}
	if q.DimensionName == "" {
		q.DimensionName = "InstanceId"
	}
	if q.Days <= 0 {
		q.Days = 14
	}
	if q.PeriodSeconds <= 0 {
		q.PeriodSeconds = 3600
	}
}

// ResourceMetrics returns the metric timeseries for one resource plus
// summary statistics, in a JSON-friendly shape:
// {"average": float64, "maximum": float64, "datapoints": []map[string]any}
func (c *Client) ResourceMetrics(ctx context.Context, q MetricQuery) (map[string]any, error) {
	q.applyDefaults()
	if q.MetricName == "" {
		return nil, fmt.Errorf("cloudwatch: metric name is required")
	}
	if q.ResourceID == "" {
		return nil, fmt.Errorf("cloudwatch: resource id is required")
	}

	now := time.Now().UTC()
	out, err := c.api.GetMetricStatistics(ctx, &cw.GetMetricStatisticsInput{
		Namespace:  aws.String(q.Namespace),
		MetricName: aws.String(q.MetricName),
		StartTime:  aws.Time(now.Add(-time.Duration(q.Days) * 24 * time.Hour)),
		EndTime:    aws.Time(now),
		Period:     aws.Int32(q.PeriodSeconds),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage, cwtypes.StatisticMaximum},
		Dimensions: []cwtypes.Dimension{
			{
				Name:  aws.String(q.DimensionName),
				Value: aws.String(q.ResourceID),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cloudwatch: get metric statistics %s/%s: %w", q.Namespace, q.MetricName, err)
	}

	points := make([]map[string]any, 0, len(out.Datapoints))
	var sum, max float64
	var n int
	for _, dp := range out.Datapoints {
		p := map[string]any{}
		if dp.Timestamp != nil {
			p["timestamp"] = dp.Timestamp.UTC().Format(time.RFC3339)
		}
		if dp.Average != nil {
			p["average"] = *dp.Average
			sum += *dp.Average
			n++
		}
		if dp.Maximum != nil {
			p["maximum"] = *dp.Maximum
			if *dp.Maximum > max {
				max = *dp.Maximum
			}
		}
		points = append(points, p)
	}

	avg := 0.0
	if n > 0 {
		avg = sum / float64(n)
	}

	unit := ""
	if len(out.Datapoints) > 0 {
		unit = string(out.Datapoints[0].Unit)
	}

	return map[string]any{
		"namespace":   q.Namespace,
		"metric":      q.MetricName,
		"resource_id": q.ResourceID,
		"unit":        unit,
		"average":     avg,
		"maximum":     max,
		"datapoints":  points,
	}, nil
}
