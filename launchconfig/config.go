// Package launchconfig defines SageMaker training job configuration.
package launchconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/colorstring"
	"sigs.k8s.io/yaml" // must use "sigs.k8s.io/yaml"

	"github.com/philschmid/deepspeed-sagemaker-example/pkg/timeutil"
)

// SAGEMAKER_LAUNCH_PREFIX is the environment variable prefix used for "launchconfig".
const SAGEMAKER_LAUNCH_PREFIX = "SAGEMAKER_LAUNCH_"

const (
	// DefaultInstanceTypeGPU is the default SageMaker training instance type with GPUs.
	// https://aws.amazon.com/sagemaker/pricing/
	DefaultInstanceTypeGPU = "ml.p3.2xlarge"

	// DefaultVolumeSize is the default EBS volume size in GB attached to each training instance.
	DefaultVolumeSize = 30

	// DefaultMaxRuntime is the default stopping condition for a training job.
	DefaultMaxRuntime = 24 * time.Hour

	// dlcAccountID is the AWS account that hosts the HuggingFace deep learning containers.
	// https://github.com/aws/deep-learning-containers/blob/master/available_images.md
	dlcAccountID = "763104351884"
)

// Config defines a SageMaker training job configuration.
type Config struct {
	mu *sync.RWMutex

	// Name is the training job name.
	// If empty, it is auto-populated.
	Name string `json:"name"`
	// Partition is the AWS partition for the training job region.
	// If empty, set default partition "aws".
	Partition string `json:"partition"`
	// Region is the AWS geographic area for the training job.
	// If empty, set default region.
	Region string `json:"region"`

	// ConfigPath is the configuration file path.
	// The submitter is expected to update this file with latest status.
	ConfigPath string `json:"config-path,omitempty"`

	// LogColor is true to output logs in color.
	LogColor bool `json:"log-color"`
	// LogColorOverride is not empty to override "LogColor" setting.
	LogColorOverride string `json:"log-color-override"`
	// LogLevel configures log level. Only supports debug, info, warn, error, panic, or fatal. Default 'info'.
	LogLevel string `json:"log-level"`
	// LogOutputs is a list of log outputs. Valid values are 'default', 'stderr', 'stdout', or file names.
	// Logs are appended to the existing file, if any.
	// A log file named with the job name is added automatically.
	LogOutputs []string `json:"log-outputs,omitempty"`

	// AWSAccountID is the account ID of the caller session.
	AWSAccountID string `json:"aws-account-id" read-only:"true"`
	// AWSUserID is the user ID of the caller session.
	AWSUserID string `json:"aws-user-id" read-only:"true"`
	// AWSCallerARN is the ARN of the caller session.
	AWSCallerARN string `json:"aws-caller-arn" read-only:"true"`

	// RoleName is the name of the SageMaker execution role to resolve through IAM.
	RoleName string `json:"role-name"`
	// RoleARN is the resolved execution role ARN, populated at submit time.
	RoleARN string `json:"role-arn" read-only:"true"`

	// S3BucketName is the artifact bucket. If empty, the session default
	// bucket "sagemaker-<region>-<account-id>" is used.
	S3BucketName string `json:"s3-bucket-name"`
	// S3BucketCreate is true to create the artifact bucket when it does not exist.
	S3BucketCreate bool `json:"s3-bucket-create"`
	// SourceS3URI is where the packed source tree was uploaded.
	SourceS3URI string `json:"source-s3-uri" read-only:"true"`
	// OutputS3URI is where the platform writes model artifacts.
	// If empty, derived from the artifact bucket and job name.
	OutputS3URI string `json:"output-s3-uri"`

	// SourceDir is the local directory packed and uploaded as the training source.
	SourceDir string `json:"source-dir"`
	// EntryPoint is the training entry point, relative to SourceDir.
	EntryPoint string `json:"entry-point"`

	// TrainingImage is the training container image URI.
	// If empty, derived from TransformersVersion/PyTorchVersion/PyVersion.
	TrainingImage string `json:"training-image"`
	// TransformersVersion selects the HuggingFace DLC, when TrainingImage is empty.
	TransformersVersion string `json:"transformers-version"`
	// PyTorchVersion selects the HuggingFace DLC, when TrainingImage is empty.
	PyTorchVersion string `json:"pytorch-version"`
	// PyVersion selects the HuggingFace DLC, when TrainingImage is empty.
	PyVersion string `json:"py-version"`

	// InstanceType is the SageMaker training instance type (e.g. "ml.p3.2xlarge").
	InstanceType string `json:"instance-type"`
	// InstanceCount is the number of training nodes.
	InstanceCount int32 `json:"instance-count"`
	// VolumeSize is the EBS volume size in GB attached to each training instance.
	VolumeSize int32 `json:"volume-size"`
	// MaxRuntime is the stopping condition for the training job.
	MaxRuntime time.Duration `json:"max-runtime"`
	// OnInterruptStop is true to issue StopTrainingJob when the submitter is interrupted.
	// Default is false; the remote job keeps running and billing.
	OnInterruptStop bool `json:"on-interrupt-stop"`

	// MetricsNamespace is not empty to publish a completion metric to CloudWatch.
	MetricsNamespace string `json:"metrics-namespace"`

	// Hyperparameters are passed to the training job.
	// Keys with the reserved "sagemaker_" prefix are rejected.
	Hyperparameters map[string]string `json:"hyperparameters,omitempty"`
	// Tags are applied to the training job.
	Tags map[string]string `json:"tags,omitempty"`

	// Submitted is true once the training job was created.
	Submitted bool `json:"submitted" read-only:"true"`
	// TrainingJobARN is the ARN of the created training job.
	TrainingJobARN string `json:"training-job-arn" read-only:"true"`
	// TrainingJobStatus is the last observed training job status.
	TrainingJobStatus string `json:"training-job-status" read-only:"true"`
	// SecondaryStatus is the last observed secondary status.
	SecondaryStatus string `json:"secondary-status" read-only:"true"`
	// FailureReason is set when the training job failed.
	FailureReason string `json:"failure-reason" read-only:"true"`
	// BillableSeconds is the billed training time reported by the platform.
	BillableSeconds int32 `json:"billable-seconds" read-only:"true"`

	TimeFrameSubmit timeutil.TimeFrame `json:"time-frame-submit" read-only:"true"`
}

// Load loads a configuration from the file path.
func Load(p string) (cfg *Config, err error) {
	var d []byte
	d, err = os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	cfg = new(Config)
	if err = yaml.Unmarshal(d, cfg, yaml.DisallowUnknownFields); err != nil {
		return nil, err
	}

	cfg.mu = new(sync.RWMutex)
	var ap string
	ap, err = filepath.Abs(p)
	if err != nil {
		return nil, err
	}
	cfg.ConfigPath = ap
	cfg.unsafeSync()

	return cfg, nil
}

// Sync persists current configuration and states to "ConfigPath".
func (cfg *Config) Sync() (err error) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	return cfg.unsafeSync()
}

func (cfg *Config) unsafeSync() (err error) {
	var p string
	if cfg.ConfigPath != "" && !filepath.IsAbs(cfg.ConfigPath) {
		p, err = filepath.Abs(cfg.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to 'filepath.Abs(%s)' %v", cfg.ConfigPath, err)
		}
		cfg.ConfigPath = p
	}
	var d []byte
	d, err = yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to 'yaml.Marshal' %v", err)
	}
	if err = os.WriteFile(cfg.ConfigPath, d, 0600); err != nil {
		return fmt.Errorf("failed to write file %q (%v)", cfg.ConfigPath, err)
	}
	return nil
}

// Colorize prints colorized input, if color output is supported.
func (cfg Config) Colorize(input string) string {
	colorize := colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: !cfg.LogColor,
		Reset:   true,
	}
	return colorize.Color(input)
}

func getTS() string {
	now := time.Now()
	return fmt.Sprintf(
		"%04d%02d%02d%02d%02d",
		now.Year(),
		int(now.Month()),
		now.Day(),
		now.Hour(),
		now.Minute(),
	)
}
