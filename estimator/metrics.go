package estimator

import (
	"context"
	"time"

	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_cw_v2 "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	aws_cw_v2_types "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// publishMetrics publishes the billable training seconds to CloudWatch.
// Failures are logged, not fatal: the job already finished.
func (ts *Estimator) publishMetrics(ctx context.Context) {
	if ts.cfg.MetricsNamespace == "" {
		return
	}

	_, err := ts.cwAPI.PutMetricData(ctx, &aws_cw_v2.PutMetricDataInput{
		Namespace: aws_v2.String(ts.cfg.MetricsNamespace),
		MetricData: []aws_cw_v2_types.MetricDatum{
			{
				MetricName: aws_v2.String("TrainingJobSeconds"),
				Value:      aws_v2.Float64(float64(ts.cfg.BillableSeconds)),
				Unit:       aws_cw_v2_types.StandardUnitSeconds,
				Timestamp:  aws_v2.Time(time.Now().UTC()),
				Dimensions: []aws_cw_v2_types.Dimension{
					{
						Name:  aws_v2.String("TrainingJobName"),
						Value: aws_v2.String(ts.cfg.Name),
					},
					{
						Name:  aws_v2.String("InstanceType"),
						Value: aws_v2.String(ts.cfg.InstanceType),
					},
				},
			},
		},
	})
	if err != nil {
		ts.lg.Warn("failed to publish metrics", zap.String("namespace", ts.cfg.MetricsNamespace), zap.Error(err))
		return
	}
	ts.lg.Info("published metrics",
		zap.String("namespace", ts.cfg.MetricsNamespace),
		zap.Int32("billable-seconds", ts.cfg.BillableSeconds),
	)
}
