package notify

import (
	"context"
	"fmt"

	"github.com/BradenHooton/warden/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchAPI is the subset of the CloudWatch client used for alert metrics
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchChannel publishes one SecurityAlerts datapoint per alert so
// CloudWatch alarms can page on rate or severity.
type CloudWatchChannel struct {
	client    CloudWatchAPI
	namespace string
}

// NewCloudWatchChannel creates a CloudWatch channel using the default AWS credential chain
func NewCloudWatchChannel(ctx context.Context, region, namespace string) (*CloudWatchChannel, error) {
	cfg, err := loadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewCloudWatchChannelWithClient(cloudwatch.NewFromConfig(cfg), namespace), nil
}

// NewCloudWatchChannelWithClient creates a CloudWatch channel on an existing client
func NewCloudWatchChannelWithClient(client CloudWatchAPI, namespace string) *CloudWatchChannel {
	return &CloudWatchChannel{
		client:    client,
		namespace: namespace,
	}
}

func (c *CloudWatchChannel) Name() string {
	return "cloudwatch"
}

func (c *CloudWatchChannel) Send(ctx context.Context, alert *models.Alert) error {
	dimensions := []types.Dimension{
		{Name: aws.String("AlertType"), Value: aws.String(string(alert.Type))},
		{Name: aws.String("Severity"), Value: aws.String(string(alert.Severity))},
	}
	if alert.TenantID != "" {
		dimensions = append(dimensions, types.Dimension{Name: aws.String("Tenant"), Value: aws.String(alert.TenantID)})
	}

	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String("SecurityAlerts"),
				Dimensions: dimensions,
				Timestamp:  aws.Time(alert.Timestamp),
				Unit:       types.StandardUnitCount,
				Value:      aws.Float64(1),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("cloudwatch: failed to put metric data: %w", err)
	}
	return nil
}
