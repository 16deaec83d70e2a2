package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/philschmid/deepspeed-sagemaker-example/pkg/timeutil"
)

// DefaultDeepSpeedPath is the launcher binary provided by the training image.
const DefaultDeepSpeedPath = "deepspeed"

// Config configures one in-container launch.
type Config struct {
	Logger   *zap.Logger
	Topology Topology

	// TrainingScript is the path to the training program, absolute or
	// relative to the container working directory.
	TrainingScript string
	// Args are forwarded verbatim to the training process.
	Args []string

	// AllowCPUOnly permits a zero-GPU launch. Default is a hard error,
	// since a missing SM_NUM_GPUS otherwise degrades into a silent
	// CPU-only run.
	AllowCPUOnly bool

	// DeepSpeedPath overrides the deepspeed binary. Defaults to "deepspeed".
	DeepSpeedPath string
}

// Result captures the outcome of the spawned training process.
type Result struct {
	// Rank is this node's zero-based position among the cluster hosts.
	Rank int
	// Command is the human-readable rendering of the executed argv.
	Command string
	// ExitCode is the child's exit code; -1 when the child never ran.
	ExitCode int

	TimeFrame timeutil.TimeFrame
}

// Launcher builds the DeepSpeed argv for this node and runs it to completion.
type Launcher struct {
	lg  *zap.Logger
	cfg Config
}

// New creates a new Launcher.
func New(cfg Config) (*Launcher, error) {
	if cfg.Logger == nil {
		return nil, errors.New("got empty logger")
	}
	if cfg.TrainingScript == "" {
		return nil, fmt.Errorf("training script is empty (specify %s)", flagTrainingScript)
	}
	if cfg.DeepSpeedPath == "" {
		cfg.DeepSpeedPath = DefaultDeepSpeedPath
	}
	return &Launcher{lg: cfg.Logger, cfg: cfg}, nil
}

// buildArgs returns the argv vector for the training process.
// An argument vector is used instead of a composed shell string, so
// forwarded arguments can never be re-interpreted by a shell.
func (lc *Launcher) buildArgs() []string {
	args := []string{
		lc.cfg.DeepSpeedPath,
		fmt.Sprintf("--num_gpus=%d", lc.cfg.Topology.NumGPUs),
		lc.cfg.TrainingScript,
	}
	return append(args, lc.cfg.Args...)
}

// Run computes the node rank, spawns the DeepSpeed process, and waits for
// it to exit. The child's exit status is returned, never swallowed: a
// non-zero child exit is an error, and Result.ExitCode carries the code so
// the caller can mirror it.
func (lc *Launcher) Run(ctx context.Context) (Result, error) {
	rank, err := lc.cfg.Topology.Rank()
	if err != nil {
		return Result{ExitCode: -1}, err
	}

	if lc.cfg.Topology.NumGPUs == 0 && !lc.cfg.AllowCPUOnly {
		return Result{Rank: rank, ExitCode: -1},
			fmt.Errorf("no GPUs found on this node (set %s=true for a CPU-only run)", EnvAllowCPUOnly)
	}

	args := lc.buildArgs()
	rendered := shellquote.Join(args...)
	lc.lg.Info("launching deepspeed",
		zap.Int("num-gpus", lc.cfg.Topology.NumGPUs),
		zap.Int("num-nodes", lc.cfg.Topology.NumNodes()),
		zap.String("current-host", lc.cfg.Topology.CurrentHost),
		zap.Int("rank", rank),
		zap.String("command", rendered),
	)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	start := time.Now()
	err = cmd.Run()
	res := Result{
		Rank:      rank,
		Command:   rendered,
		TimeFrame: timeutil.NewTimeFrame(start, time.Now()),
	}

	if err == nil {
		res.ExitCode = 0
		lc.lg.Info("deepspeed exited", zap.Int("exit-code", 0), zap.String("took", res.TimeFrame.TookString))
		return res, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
		lc.lg.Error("deepspeed failed", zap.Int("exit-code", res.ExitCode), zap.String("took", res.TimeFrame.TookString))
		return res, fmt.Errorf("deepspeed exited with code %d", res.ExitCode)
	}

	res.ExitCode = -1
	lc.lg.Error("failed to run deepspeed", zap.Error(err))
	return res, fmt.Errorf("failed to run deepspeed: %w", err)
}
