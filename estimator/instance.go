package estimator

import (
	"context"
	"fmt"
	"strings"

	aws_ec2_v2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	aws_ec2_v2_types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"
)

// bareInstanceType strips the SageMaker "ml." prefix so the shape can be
// looked up against the EC2 instance type catalog.
func bareInstanceType(instanceType string) string {
	return strings.TrimPrefix(instanceType, "ml.")
}

// describeInstanceGPUs returns the GPU count of the underlying EC2 shape.
func (ts *Estimator) describeInstanceGPUs(ctx context.Context) (int32, error) {
	bare := bareInstanceType(ts.cfg.InstanceType)
	out, err := ts.ec2API.DescribeInstanceTypes(ctx, &aws_ec2_v2.DescribeInstanceTypesInput{
		InstanceTypes: []aws_ec2_v2_types.InstanceType{aws_ec2_v2_types.InstanceType(bare)},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to describe instance type %q (%w)", bare, err)
	}
	if len(out.InstanceTypes) != 1 {
		return 0, fmt.Errorf("expected 1 instance type for %q, got %d", bare, len(out.InstanceTypes))
	}

	info := out.InstanceTypes[0]
	var gpus int32
	if info.GpuInfo != nil {
		for _, g := range info.GpuInfo.Gpus {
			if g.Count != nil {
				gpus += *g.Count
			}
		}
	}
	return gpus, nil
}

// validateInstanceGPUs logs the per-node GPU count the in-container launcher
// will observe. A GPU-less shape is a warning, not an error: CPU-only debug
// runs are a deliberate option on the launcher side.
func (ts *Estimator) validateInstanceGPUs(ctx context.Context) {
	gpus, err := ts.describeInstanceGPUs(ctx)
	if err != nil {
		ts.lg.Warn("could not determine per-node GPU count", zap.String("instance-type", ts.cfg.InstanceType), zap.Error(err))
		return
	}
	if gpus == 0 {
		ts.lg.Warn("instance type has no GPUs; training defaults to CPU-only",
			zap.String("instance-type", ts.cfg.InstanceType),
		)
		return
	}
	ts.lg.Info("instance type GPU count",
		zap.String("instance-type", ts.cfg.InstanceType),
		zap.Int32("gpus-per-node", gpus),
		zap.Int32("instance-count", ts.cfg.InstanceCount),
		zap.Int32("total-gpus", gpus*ts.cfg.InstanceCount),
	)
}
