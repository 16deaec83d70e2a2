package estimator

import (
	"context"
	"errors"
	"fmt"
	"time"

	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	config_v2 "github.com/aws/aws-sdk-go-v2/config"
	aws_iam_v2 "github.com/aws/aws-sdk-go-v2/service/iam"
	aws_s3_v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	aws_s3_v2_types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	aws_sts_v2 "github.com/aws/aws-sdk-go-v2/service/sts"
	smithy "github.com/aws/smithy-go"
	"github.com/aws/smithy-go/logging"
	"go.uber.org/zap"
)

// newAWSConfig creates a new AWS SDK v2 config bound to the zap logger.
func newAWSConfig(lg *zap.Logger, partition string, region string) (awsCfg aws_v2.Config, err error) {
	if lg == nil {
		return aws_v2.Config{}, errors.New("missing logger")
	}
	if partition == "" {
		return aws_v2.Config{}, errors.New("missing partition")
	}
	if region == "" {
		return aws_v2.Config{}, errors.New("missing region")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	awsCfg, err = config_v2.LoadDefaultConfig(ctx,
		config_v2.WithRegion(region),
		config_v2.WithLogger(toLoggerV2(lg)),
	)
	if err != nil {
		return aws_v2.Config{}, fmt.Errorf("failed to load config %v", err)
	}
	return awsCfg, nil
}

// toLoggerV2 converts *zap.Logger to logging.Logger.
func toLoggerV2(lg *zap.Logger) logging.Logger {
	return &zapLoggerV2{lg}
}

type zapLoggerV2 struct {
	*zap.Logger
}

func (lg *zapLoggerV2) Logf(c logging.Classification, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	switch c {
	case logging.Warn:
		lg.Warn(msg)
	case logging.Debug:
		lg.Debug(msg)
	}
}

// resolveIdentity fetches the caller identity to populate account fields.
func (ts *Estimator) resolveIdentity(ctx context.Context) error {
	out, err := ts.stsAPI.GetCallerIdentity(ctx, &aws_sts_v2.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("failed to get caller identity (%w)", err)
	}
	ts.cfg.AWSAccountID = aws_v2.ToString(out.Account)
	ts.cfg.AWSUserID = aws_v2.ToString(out.UserId)
	ts.cfg.AWSCallerARN = aws_v2.ToString(out.Arn)
	ts.cfg.Sync()

	ts.lg.Info("resolved caller identity",
		zap.String("aws-account-id", ts.cfg.AWSAccountID),
		zap.String("aws-caller-arn", ts.cfg.AWSCallerARN),
	)
	return nil
}

// resolveRole resolves the execution role ARN from the role name.
func (ts *Estimator) resolveRole(ctx context.Context) error {
	if ts.cfg.RoleARN != "" {
		ts.lg.Info("role ARN already resolved; skipping", zap.String("role-arn", ts.cfg.RoleARN))
		return nil
	}
	out, err := ts.iamAPI.GetRole(ctx, &aws_iam_v2.GetRoleInput{
		RoleName: aws_v2.String(ts.cfg.RoleName),
	})
	if err != nil {
		return fmt.Errorf("failed to get role %q (%w)", ts.cfg.RoleName, err)
	}
	ts.cfg.RoleARN = aws_v2.ToString(out.Role.Arn)
	ts.cfg.Sync()

	ts.lg.Info("resolved execution role",
		zap.String("role-name", ts.cfg.RoleName),
		zap.String("role-arn", ts.cfg.RoleARN),
	)
	return nil
}

// defaultBucket returns the session default bucket name for the account.
func defaultBucket(region string, accountID string) string {
	return fmt.Sprintf("sagemaker-%s-%s", region, accountID)
}

// ensureBucket makes sure the artifact bucket exists.
func (ts *Estimator) ensureBucket(ctx context.Context) error {
	if ts.cfg.S3BucketName == "" {
		ts.cfg.S3BucketName = defaultBucket(ts.cfg.Region, ts.cfg.AWSAccountID)
		ts.cfg.Sync()
	}

	_, err := ts.s3API.HeadBucket(ctx, &aws_s3_v2.HeadBucketInput{
		Bucket: aws_v2.String(ts.cfg.S3BucketName),
	})
	if err == nil {
		ts.lg.Info("bucket exists", zap.String("s3-bucket-name", ts.cfg.S3BucketName))
		return nil
	}
	if !ts.cfg.S3BucketCreate {
		return fmt.Errorf("bucket %q not accessible and S3BucketCreate is false (%w)", ts.cfg.S3BucketName, err)
	}

	ts.lg.Info("creating bucket", zap.String("s3-bucket-name", ts.cfg.S3BucketName))
	input := &aws_s3_v2.CreateBucketInput{
		Bucket: aws_v2.String(ts.cfg.S3BucketName),
	}
	// us-east-1 rejects an explicit location constraint
	if ts.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &aws_s3_v2_types.CreateBucketConfiguration{
			LocationConstraint: aws_s3_v2_types.BucketLocationConstraint(ts.cfg.Region),
		}
	}
	_, err = ts.s3API.CreateBucket(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				ts.lg.Info("bucket already exists", zap.String("s3-bucket-name", ts.cfg.S3BucketName), zap.String("code", apiErr.ErrorCode()))
				return nil
			}
		}
		return fmt.Errorf("failed to create bucket %q (%w)", ts.cfg.S3BucketName, err)
	}

	ts.lg.Info("created bucket", zap.String("s3-bucket-name", ts.cfg.S3BucketName))
	return nil
}
