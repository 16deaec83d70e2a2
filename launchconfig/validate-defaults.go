package launchconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/philschmid/deepspeed-sagemaker-example/pkg/fileutil"
	"github.com/philschmid/deepspeed-sagemaker-example/pkg/logutil"
	"github.com/philschmid/deepspeed-sagemaker-example/pkg/randutil"
)

// https://docs.aws.amazon.com/sagemaker/latest/APIReference/API_CreateTrainingJob.html
var jobNameRegex = regexp.MustCompile(`^[a-z0-9](-*[a-z0-9]){0,62}$`)

var regionRegex = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d$`)

// huggingFaceTrainingTags maps a transformers/pytorch/py version triple to
// the HuggingFace training DLC image tag.
// https://github.com/aws/deep-learning-containers/blob/master/available_images.md
var huggingFaceTrainingTags = map[string]string{
	"4.17/1.10/py38": "1.10.2-transformers4.17.0-gpu-py38-cu113-ubuntu20.04",
	"4.26/1.13/py39": "1.13.1-transformers4.26.0-gpu-py39-cu117-ubuntu20.04",
	"4.28/2.0/py310": "2.0.0-transformers4.28.1-gpu-py310-cu118-ubuntu20.04",
}

// NewDefault returns a default configuration, mirroring the reference
// DeepSpeed fine-tuning job (BERT on GLUE/sst2, single ml.p3.2xlarge node).
//   - empty string creates a non-nil object for pointer-type field
//   - omitting an entire field returns nil value
//   - make sure to check both
func NewDefault() *Config {
	name := fmt.Sprintf("deepspeed-%s-%s", getTS()[:10], randutil.String(12))
	if v := os.Getenv(SAGEMAKER_LAUNCH_PREFIX + "NAME"); v != "" {
		name = v
	}
	return &Config{
		mu: new(sync.RWMutex),

		Name:      name,
		Partition: "aws",
		Region:    "us-east-1",

		// to be auto-generated
		ConfigPath: "",

		LogColor:   true,
		LogLevel:   logutil.DefaultLogLevel,
		LogOutputs: []string{"stderr"},

		RoleName: "sagemaker_execution_role",

		S3BucketName:   "",
		S3BucketCreate: true,

		SourceDir:  ".",
		EntryPoint: "ds_launcher.py",

		TransformersVersion: "4.17",
		PyTorchVersion:      "1.10",
		PyVersion:           "py38",

		InstanceType:  DefaultInstanceTypeGPU,
		InstanceCount: 1,
		VolumeSize:    DefaultVolumeSize,
		MaxRuntime:    DefaultMaxRuntime,

		Hyperparameters: map[string]string{
			"training_script":             "scripts/run_glue.py",
			"model_name_or_path":          "bert-large-uncased",
			"task_name":                   "sst2",
			"do_train":                    "true",
			"per_device_train_batch_size": "32",
			"num_train_epochs":            "3",
			"output_dir":                  "/opt/ml/model",
			"deepspeed":                   "configs/ds_z3_offload.json",
		},
	}
}

// ValidateAndSetDefaults returns an error for invalid configurations.
// And updates empty fields with default values.
// At the end, it writes populated YAML to the config path.
func (cfg *Config) ValidateAndSetDefaults() error {
	if cfg.mu == nil {
		cfg.mu = new(sync.RWMutex)
	}
	cfg.mu.Lock()
	defer func() {
		cfg.unsafeSync()
		cfg.mu.Unlock()
	}()

	if err := cfg.validateConfig(); err != nil {
		return fmt.Errorf("validateConfig failed [%v]", err)
	}
	if err := cfg.validateJobSpec(); err != nil {
		return fmt.Errorf("validateJobSpec failed [%v]", err)
	}

	return nil
}

func (cfg *Config) validateConfig() error {
	if len(cfg.Name) == 0 {
		return errors.New("Name is empty")
	}
	if cfg.Name != strings.ToLower(cfg.Name) {
		return fmt.Errorf("Name %q must be in lower-case", cfg.Name)
	}
	if !jobNameRegex.MatchString(cfg.Name) {
		return fmt.Errorf("Name %q must match %q", cfg.Name, jobNameRegex.String())
	}

	switch cfg.Partition {
	case "":
		cfg.Partition = "aws"
	case "aws", "aws-cn", "aws-us-gov":
	default:
		return fmt.Errorf("unknown partition %q", cfg.Partition)
	}
	if cfg.Region == "" {
		return errors.New("Region is empty")
	}
	if !regionRegex.MatchString(cfg.Region) {
		return fmt.Errorf("invalid region %q", cfg.Region)
	}

	if cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(os.TempDir(), cfg.Name+".yaml")
	}
	if err := fileutil.IsDirWriteable(filepath.Dir(cfg.ConfigPath)); err != nil {
		return err
	}

	if cfg.LogColorOverride != "" {
		ov, perr := strconv.ParseBool(cfg.LogColorOverride)
		if perr != nil {
			return fmt.Errorf("failed to parse LogColorOverride %q (%v)", cfg.LogColorOverride, perr)
		}
		cfg.LogColor = ov
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = logutil.DefaultLogLevel
	}
	if len(cfg.LogOutputs) == 0 {
		cfg.LogOutputs = []string{"stderr"}
	}
	logFound := false
	for _, fpath := range cfg.LogOutputs {
		if filepath.Ext(fpath) == ".log" {
			logFound = true
			break
		}
	}
	if !logFound {
		cfg.LogOutputs = append(cfg.LogOutputs, filepath.Join(filepath.Dir(cfg.ConfigPath), cfg.Name+".log"))
	}

	return nil
}

func (cfg *Config) validateJobSpec() error {
	if cfg.RoleName == "" && cfg.RoleARN == "" {
		return errors.New("RoleName is empty")
	}

	if cfg.SourceDir == "" {
		return errors.New("SourceDir is empty")
	}
	if cfg.EntryPoint == "" {
		return errors.New("EntryPoint is empty")
	}
	if filepath.IsAbs(cfg.EntryPoint) {
		return fmt.Errorf("EntryPoint %q must be relative to SourceDir", cfg.EntryPoint)
	}

	if cfg.TrainingImage == "" {
		key := fmt.Sprintf("%s/%s/%s", cfg.TransformersVersion, cfg.PyTorchVersion, cfg.PyVersion)
		tag, ok := huggingFaceTrainingTags[key]
		if !ok {
			return fmt.Errorf("no known training image for transformers/pytorch/py %q; set TrainingImage", key)
		}
		cfg.TrainingImage = fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/huggingface-pytorch-training:%s", dlcAccountID, cfg.Region, tag)
	}

	if !strings.HasPrefix(cfg.InstanceType, "ml.") {
		return fmt.Errorf("InstanceType %q must start with \"ml.\"", cfg.InstanceType)
	}
	if cfg.InstanceCount < 1 {
		return fmt.Errorf("InstanceCount %d must be >=1", cfg.InstanceCount)
	}
	if cfg.VolumeSize == 0 {
		cfg.VolumeSize = DefaultVolumeSize
	}
	if cfg.MaxRuntime == 0 {
		cfg.MaxRuntime = DefaultMaxRuntime
	}

	for k := range cfg.Hyperparameters {
		if strings.HasPrefix(k, "sagemaker_") {
			return fmt.Errorf("hyperparameter %q uses the reserved \"sagemaker_\" prefix", k)
		}
	}

	return nil
}
