package estimator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/philschmid/deepspeed-sagemaker-example/launchconfig"
)

func TestDefaultBucket(t *testing.T) {
	assert.Equal(t, "sagemaker-us-east-1-123456789012", defaultBucket("us-east-1", "123456789012"))
}

func TestBareInstanceType(t *testing.T) {
	assert.Equal(t, "p3.2xlarge", bareInstanceType("ml.p3.2xlarge"))
	assert.Equal(t, "p3.2xlarge", bareInstanceType("p3.2xlarge"))
}

func TestJSONEncodeHyperparameters(t *testing.T) {
	hp := jsonEncodeHyperparameters(map[string]string{
		"model_name_or_path": "bert-large-uncased",
		"num_train_epochs":   "3",
	})
	assert.Equal(t, `"bert-large-uncased"`, hp["model_name_or_path"])
	assert.Equal(t, `"3"`, hp["num_train_epochs"])
}

func TestBuildCreateInput(t *testing.T) {
	cfg := launchconfig.NewDefault()
	cfg.Name = "deepspeed-test-job"
	cfg.ConfigPath = filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.ValidateAndSetDefaults())

	cfg.RoleARN = "arn:aws:iam::123456789012:role/sagemaker_execution_role"
	cfg.SourceS3URI = "s3://sagemaker-us-east-1-123456789012/deepspeed-test-job/source/sourcedir.tar.gz"
	cfg.OutputS3URI = "s3://sagemaker-us-east-1-123456789012/deepspeed-test-job/output"
	cfg.Tags = map[string]string{"team": "ml"}
	cfg.MaxRuntime = 2 * time.Hour

	input, err := buildCreateInput(cfg)
	require.NoError(t, err)

	assert.Equal(t, "deepspeed-test-job", aws_v2.ToString(input.TrainingJobName))
	assert.Equal(t, cfg.RoleARN, aws_v2.ToString(input.RoleArn))
	assert.Equal(t, cfg.TrainingImage, aws_v2.ToString(input.AlgorithmSpecification.TrainingImage))
	assert.Equal(t, cfg.InstanceType, string(input.ResourceConfig.InstanceType))
	assert.Equal(t, int32(1), aws_v2.ToInt32(input.ResourceConfig.InstanceCount))
	assert.Equal(t, int32(7200), aws_v2.ToInt32(input.StoppingCondition.MaxRuntimeInSeconds))
	assert.Equal(t, int32(launchconfig.DefaultVolumeSize), aws_v2.ToInt32(input.ResourceConfig.VolumeSizeInGB))
	assert.Equal(t, cfg.OutputS3URI, aws_v2.ToString(input.OutputDataConfig.S3OutputPath))

	// user hyperparameters forwarded, platform hyperparameters injected
	assert.Equal(t, `"scripts/run_glue.py"`, input.HyperParameters["training_script"])
	assert.Equal(t, `"ds_launcher.py"`, input.HyperParameters["sagemaker_program"])
	assert.Equal(t, `"`+cfg.SourceS3URI+`"`, input.HyperParameters["sagemaker_submit_directory"])
	assert.Equal(t, `"us-east-1"`, input.HyperParameters["sagemaker_region"])

	require.Len(t, input.Tags, 1)
	assert.Equal(t, "team", aws_v2.ToString(input.Tags[0].Key))
}

func TestBuildCreateInputRequiresResolution(t *testing.T) {
	cfg := launchconfig.NewDefault()
	cfg.ConfigPath = filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.ValidateAndSetDefaults())

	if _, err := buildCreateInput(cfg); err == nil {
		t.Fatal("expected error before role/source resolution")
	}
}

// TestFitLive submits a real, billable training job. Guarded.
func TestFitLive(t *testing.T) {
	if os.Getenv("SAGEMAKER_LAUNCH_TEST_LIVE") != "true" {
		t.Skip("SAGEMAKER_LAUNCH_TEST_LIVE is not 'true'; skipping billable live test")
	}

	cfg := launchconfig.NewDefault()
	if err := cfg.UpdateFromEnvs(); err != nil {
		t.Fatal(err)
	}

	ts, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer ts.Close()

	if err = ts.Fit(context.Background()); err != nil {
		t.Fatal(err)
	}
}
