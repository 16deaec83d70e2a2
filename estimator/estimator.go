// Package estimator submits SageMaker training jobs and waits for completion.
package estimator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_cw_v2 "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	aws_ec2_v2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	aws_iam_v2 "github.com/aws/aws-sdk-go-v2/service/iam"
	aws_s3_v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	aws_sm_v2 "github.com/aws/aws-sdk-go-v2/service/sagemaker"
	aws_sm_v2_types "github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	aws_sts_v2 "github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/philschmid/deepspeed-sagemaker-example/launchconfig"
	"github.com/philschmid/deepspeed-sagemaker-example/pkg/logutil"
	"github.com/philschmid/deepspeed-sagemaker-example/pkg/timeutil"
	"github.com/philschmid/deepspeed-sagemaker-example/version"
)

const defaultPollInterval = 30 * time.Second

// Estimator resolves the session, uploads the training source, creates the
// training job, and blocks until the remote job reaches a terminal status.
type Estimator struct {
	color func(string) string

	stopCreationCh     chan struct{}
	stopCreationChOnce *sync.Once

	osSig chan os.Signal

	lg        *zap.Logger
	logWriter io.Writer
	logFile   *os.File

	cfg *launchconfig.Config

	pollInterval time.Duration

	stsAPI *aws_sts_v2.Client
	iamAPI *aws_iam_v2.Client
	s3API  *aws_s3_v2.Client
	ec2API *aws_ec2_v2.Client
	smAPI  *aws_sm_v2.Client
	cwAPI  *aws_cw_v2.Client
}

// New creates a new Estimator.
func New(cfg *launchconfig.Config) (*Estimator, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	lg, logWriter, logFile, err := logutil.NewWithStderrWriter(cfg.LogLevel, cfg.LogOutputs)
	if err != nil {
		return nil, err
	}
	lg.Info("set up log writer and file", zap.Strings("outputs", cfg.LogOutputs), zap.Bool("is-color", cfg.LogColor))
	cfg.Sync()

	fmt.Fprint(logWriter, cfg.Colorize("\n\n[yellow]*********************************\n"))
	fmt.Fprintf(logWriter, cfg.Colorize("[light_green]New %q [default](%q)\n"), cfg.ConfigPath, version.Version())

	awsCfg, err := newAWSConfig(lg, cfg.Partition, cfg.Region)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	ts := &Estimator{
		color:              cfg.Colorize,
		stopCreationCh:     make(chan struct{}),
		stopCreationChOnce: new(sync.Once),
		osSig:              make(chan os.Signal, 1),
		lg:                 lg,
		logWriter:          logWriter,
		logFile:            logFile,
		cfg:                cfg,
		pollInterval:       defaultPollInterval,
		stsAPI:             aws_sts_v2.NewFromConfig(awsCfg),
		iamAPI:             aws_iam_v2.NewFromConfig(awsCfg),
		s3API:              aws_s3_v2.NewFromConfig(awsCfg),
		ec2API:             aws_ec2_v2.NewFromConfig(awsCfg),
		smAPI:              aws_sm_v2.NewFromConfig(awsCfg),
		cwAPI:              aws_cw_v2.NewFromConfig(awsCfg),
	}

	signal.Notify(ts.osSig, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-ts.osSig
		ts.lg.Warn("received os signal; stopping wait", zap.String("signal", sig.String()))
		ts.stopCreationChOnce.Do(func() { close(ts.stopCreationCh) })
	}()

	return ts, nil
}

// Close releases the log file and signal handler.
func (ts *Estimator) Close() {
	signal.Stop(ts.osSig)
	if ts.logFile != nil {
		ts.logFile.Sync()
		ts.logFile.Close()
	}
}

// Fit submits the training job and blocks until it completes or fails,
// like the reference estimator. The returned error carries the remote
// failure reason when the job did not complete.
func (ts *Estimator) Fit(ctx context.Context) (err error) {
	now := time.Now()
	defer func() {
		ts.cfg.TimeFrameSubmit = timeutil.NewTimeFrame(now, time.Now())
		ts.cfg.Sync()
	}()

	if err = ts.resolveIdentity(ctx); err != nil {
		return err
	}
	if err = ts.resolveRole(ctx); err != nil {
		return err
	}
	if err = ts.ensureBucket(ctx); err != nil {
		return err
	}
	if err = ts.uploadSource(ctx); err != nil {
		return err
	}
	ts.validateInstanceGPUs(ctx)

	if err = ts.createTrainingJob(ctx); err != nil {
		return err
	}

	out, err := ts.waitTrainingJob(ctx)
	if err != nil {
		return err
	}

	ts.cfg.TrainingJobStatus = string(out.TrainingJobStatus)
	ts.cfg.SecondaryStatus = string(out.SecondaryStatus)
	ts.cfg.FailureReason = aws_v2.ToString(out.FailureReason)
	if out.BillableTimeInSeconds != nil {
		ts.cfg.BillableSeconds = *out.BillableTimeInSeconds
	}
	ts.cfg.Sync()

	switch out.TrainingJobStatus {
	case aws_sm_v2_types.TrainingJobStatusCompleted:
		ts.publishMetrics(ctx)
		fmt.Fprint(ts.logWriter, ts.color("\n\n[light_green]training job completed 😁\n"))
		fmt.Fprintf(ts.logWriter, "model artifacts: %s\n\n", ts.cfg.OutputS3URI)
		return nil
	case aws_sm_v2_types.TrainingJobStatusFailed:
		fmt.Fprint(ts.logWriter, ts.color("\n\n[light_red]training job failed 😱\n"))
		return fmt.Errorf("training job %q failed: %s", ts.cfg.Name, ts.cfg.FailureReason)
	case aws_sm_v2_types.TrainingJobStatusStopped:
		fmt.Fprint(ts.logWriter, ts.color("\n\n[light_red]training job stopped\n"))
		return fmt.Errorf("training job %q was stopped", ts.cfg.Name)
	default:
		return fmt.Errorf("training job %q ended in unexpected status %q", ts.cfg.Name, out.TrainingJobStatus)
	}
}

// jsonEncodeHyperparameters encodes every value the way the platform SDK
// does; the in-container training toolkit JSON-decodes each value.
func jsonEncodeHyperparameters(hp map[string]string) map[string]string {
	out := make(map[string]string, len(hp))
	for k, v := range hp {
		d, err := json.Marshal(v)
		if err != nil {
			out[k] = v
			continue
		}
		out[k] = string(d)
	}
	return out
}

// buildCreateInput assembles the training job specification from the
// configuration. The source must have been uploaded already.
func buildCreateInput(cfg *launchconfig.Config) (*aws_sm_v2.CreateTrainingJobInput, error) {
	if cfg.RoleARN == "" {
		return nil, errors.New("role ARN is not resolved")
	}
	if cfg.SourceS3URI == "" {
		return nil, errors.New("source is not uploaded")
	}

	hp := make(map[string]string, len(cfg.Hyperparameters)+4)
	for k, v := range jsonEncodeHyperparameters(cfg.Hyperparameters) {
		hp[k] = v
	}
	for k, v := range jsonEncodeHyperparameters(map[string]string{
		"sagemaker_program":          cfg.EntryPoint,
		"sagemaker_submit_directory": cfg.SourceS3URI,
		"sagemaker_region":           cfg.Region,
		"sagemaker_job_name":         cfg.Name,
	}) {
		hp[k] = v
	}

	input := &aws_sm_v2.CreateTrainingJobInput{
		TrainingJobName: aws_v2.String(cfg.Name),
		RoleArn:         aws_v2.String(cfg.RoleARN),
		AlgorithmSpecification: &aws_sm_v2_types.AlgorithmSpecification{
			TrainingImage:     aws_v2.String(cfg.TrainingImage),
			TrainingInputMode: aws_sm_v2_types.TrainingInputModeFile,
		},
		HyperParameters: hp,
		ResourceConfig: &aws_sm_v2_types.ResourceConfig{
			InstanceType:   aws_sm_v2_types.TrainingInstanceType(cfg.InstanceType),
			InstanceCount:  aws_v2.Int32(cfg.InstanceCount),
			VolumeSizeInGB: aws_v2.Int32(cfg.VolumeSize),
		},
		OutputDataConfig: &aws_sm_v2_types.OutputDataConfig{
			S3OutputPath: aws_v2.String(cfg.OutputS3URI),
		},
		StoppingCondition: &aws_sm_v2_types.StoppingCondition{
			MaxRuntimeInSeconds: aws_v2.Int32(int32(cfg.MaxRuntime / time.Second)),
		},
	}
	for k, v := range cfg.Tags {
		input.Tags = append(input.Tags, aws_sm_v2_types.Tag{
			Key:   aws_v2.String(k),
			Value: aws_v2.String(v),
		})
	}
	return input, nil
}

func (ts *Estimator) createTrainingJob(ctx context.Context) error {
	input, err := buildCreateInput(ts.cfg)
	if err != nil {
		return err
	}

	ts.lg.Info("creating training job",
		zap.String("name", ts.cfg.Name),
		zap.String("training-image", ts.cfg.TrainingImage),
		zap.String("instance-type", ts.cfg.InstanceType),
		zap.Int32("instance-count", ts.cfg.InstanceCount),
	)
	out, err := ts.smAPI.CreateTrainingJob(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to create training job %q (%w)", ts.cfg.Name, err)
	}

	ts.cfg.Submitted = true
	ts.cfg.TrainingJobARN = aws_v2.ToString(out.TrainingJobArn)
	ts.cfg.Sync()

	fmt.Fprint(ts.logWriter, ts.color("\n\n[yellow]*********************************\n"))
	fmt.Fprintf(ts.logWriter, ts.color("[light_green]created training job %q [default](%q)\n"), ts.cfg.Name, ts.cfg.TrainingJobARN)
	return nil
}

// waitTrainingJob polls the training job until it reaches a terminal status.
// An interrupt stops the wait; with OnInterruptStop it also stops the remote
// job, otherwise the job keeps running (and billing) unattended.
func (ts *Estimator) waitTrainingJob(ctx context.Context) (*aws_sm_v2.DescribeTrainingJobOutput, error) {
	started := time.Now().UTC()
	prevStatus, prevSecondary := "", ""

	ticker := time.NewTicker(ts.pollInterval)
	defer ticker.Stop()

	for {
		out, err := ts.smAPI.DescribeTrainingJob(ctx, &aws_sm_v2.DescribeTrainingJobInput{
			TrainingJobName: aws_v2.String(ts.cfg.Name),
		})
		if err != nil {
			ts.lg.Error("describe training job failed; retrying", zap.Error(err))
		} else {
			status, secondary := string(out.TrainingJobStatus), string(out.SecondaryStatus)
			if status != prevStatus || secondary != prevSecondary {
				ts.lg.Info("poll",
					zap.String("name", ts.cfg.Name),
					zap.String("status", status),
					zap.String("secondary-status", secondary),
					zap.String("request-started", humanize.RelTime(started, time.Now().UTC(), "ago", "from now")),
				)
				prevStatus, prevSecondary = status, secondary
				ts.cfg.TrainingJobStatus = status
				ts.cfg.SecondaryStatus = secondary
				ts.cfg.Sync()
			}
			switch out.TrainingJobStatus {
			case aws_sm_v2_types.TrainingJobStatusCompleted,
				aws_sm_v2_types.TrainingJobStatusFailed,
				aws_sm_v2_types.TrainingJobStatusStopped:
				return out, nil
			}
		}

		select {
		case <-ctx.Done():
			ts.lg.Warn("wait aborted", zap.Error(ctx.Err()))
			return nil, ctx.Err()

		case <-ts.stopCreationCh:
			if ts.cfg.OnInterruptStop {
				ts.lg.Warn("stopping training job on interrupt", zap.String("name", ts.cfg.Name))
				if _, serr := ts.smAPI.StopTrainingJob(ctx, &aws_sm_v2.StopTrainingJobInput{
					TrainingJobName: aws_v2.String(ts.cfg.Name),
				}); serr != nil {
					ts.lg.Error("failed to stop training job", zap.Error(serr))
				}
			} else {
				ts.lg.Warn("wait stopped; training job keeps running", zap.String("name", ts.cfg.Name))
			}
			return nil, errors.New("wait stopped")

		case <-ticker.C:
		}
	}
}
