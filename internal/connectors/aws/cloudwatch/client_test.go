package cloudwatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cw "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCWAPI struct {
	in  *cw.GetMetricStatisticsInput
	out *cw.GetMetricStatisticsOutput
	err error
}

func (m *mockCWAPI) GetMetricStatistics(_ context.Context, in *cw.GetMetricStatisticsInput, _ ...func(*cw.Options)) (*cw.GetMetricStatisticsOutput, error) {
	m.in = in
	return m.out, m.err
}

func TestResourceMetrics(t *testing.T) {
	ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	mock := &mockCWAPI{
		out: &cw.GetMetricStatisticsOutput{
			Datapoints: []cwtypes.Datapoint{
				{Timestamp: aws.Time(ts), Average: aws.Float64(12.5), Maximum: aws.Float64(40.0), Unit: cwtypes.StandardUnitPercent},
				{Timestamp: aws.Time(ts.Add(time.Hour)), Average: aws.Float64(17.5), Maximum: aws.Float64(55.0), Unit: cwtypes.StandardUnitPercent},
			},
		},
	}

	client := NewFromAPI(mock)
	result, err := client.ResourceMetrics(context.Background(), MetricQuery{
		MetricName: "CPUUtilization",
		ResourceID: "i-0abc123",
	})
	require.NoError(t, err)

	assert.InDelta(t, 15.0, result["average"].(float64), 0.01)
	assert.InDelta(t, 55.0, result["maximum"].(float64), 0.01)
	assert.Equal(t, "Percent", result["unit"])

	points := result["datapoints"].([]map[string]any)
	require.Len(t, points, 2)
	assert.Equal(t, "2026-08-29T12:00:00Z", points[0]["timestamp"])

	// Defaults applied when the query leaves them unset.
	assert.Equal(t, "AWS/EC2", *mock.in.Namespace)
	assert.Equal(t, "InstanceId", *mock.in.Dimensions[0].Name)
	assert.Equal(t, int32(3600), *mock.in.Period)
}

func TestResourceMetrics_CustomDimension(t *testing.T) {
	mock := &mockCWAPI{out: &cw.GetMetricStatisticsOutput{}}
	client := NewFromAPI(mock)

	_, err := client.ResourceMetrics(context.Background(), MetricQuery{
		Namespace:     "AWS/RDS",
		MetricName:    "DatabaseConnections",
		DimensionName: "DBInstanceIdentifier",
		ResourceID:    "prod-db-1",
		Days:          7,
		PeriodSeconds: 300,
	})
	require.NoError(t, err)

	assert.Equal(t, "AWS/RDS", *mock.in.Namespace)
	assert.Equal(t, "DBInstanceIdentifier", *mock.in.Dimensions[0].Name)
	assert.Equal(t, int32(300), *mock.in.Period)
	window := mock.in.EndTime.Sub(*mock.in.StartTime)
	assert.Equal(t, 7*24*time.Hour, window)
}

func TestResourceMetrics_NoDatapoints(t *testing.T) {
	mock := &mockCWAPI{out: &cw.GetMetricStatisticsOutput{}}
	client := NewFromAPI(mock)

	result, err := client.ResourceMetrics(context.Background(), MetricQuery{
		MetricName: "CPUUtilization",
		ResourceID: "i-0abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result["average"].(float64))
	assert.Empty(t, result["datapoints"])
}

func TestResourceMetrics_Validation(t *testing.T) {
	client := NewFromAPI(&mockCWAPI{})

	_, err := client.ResourceMetrics(context.Background(), MetricQuery{ResourceID: "i-0abc123"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metric name")

	_, err = client.ResourceMetrics(context.Background(), MetricQuery{MetricName: "CPUUtilization"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource id")
}

func TestResourceMetrics_APIError(t *testing.T) {
	client := NewFromAPI(&mockCWAPI{err: errors.New("throttled")})
	_, err := client.ResourceMetrics(context.Background(), MetricQuery{
		MetricName: "CPUUtilization",
		ResourceID: "i-0abc123",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloudwatch:")
}
