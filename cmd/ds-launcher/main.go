// ds-launcher spawns DeepSpeed training inside a SageMaker training container.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/philschmid/deepspeed-sagemaker-example/launcher"
	"github.com/philschmid/deepspeed-sagemaker-example/pkg/logutil"
)

var rootCmd = &cobra.Command{
	Use:   "ds-launcher --training_script PATH [training args...]",
	Short: "Spawns DeepSpeed training on this node",
	Long: `Reads cluster topology from SM_NUM_GPUS, SM_HOSTS, and SM_CURRENT_HOST,
computes this node's rank, and runs DeepSpeed with the given training script.
Every argument other than --training_script is forwarded verbatim.`,

	// the launcher recognizes exactly one option; everything else must
	// reach the training process untouched, so cobra must not parse argv
	DisableFlagParsing: true,

	SilenceUsage: true,
	RunE:         launchFunc,
}

// exitCode mirrors the child's exit status, unlike the reference launcher
// which logged child failures and exited zero.
var exitCode = 1

func launchFunc(cmd *cobra.Command, args []string) error {
	logLevel := os.Getenv(launcher.EnvLogLevel)
	if logLevel == "" {
		logLevel = logutil.DefaultLogLevel
	}
	lg, err := logutil.New(logLevel, []string{"stderr"})
	if err != nil {
		return err
	}
	defer lg.Sync()

	tp, err := launcher.ParseTopology(lg)
	if err != nil {
		return err
	}

	allowCPUOnly := os.Getenv(launcher.EnvAllowCPUOnly) == "true"
	trainingScript, passthrough := launcher.SplitArgs(args)

	lc, err := launcher.New(launcher.Config{
		Logger:         lg,
		Topology:       tp,
		TrainingScript: trainingScript,
		Args:           passthrough,
		AllowCPUOnly:   allowCPUOnly,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	res, err := lc.Run(ctx)
	if err != nil {
		if res.ExitCode > 0 {
			exitCode = res.ExitCode
		}
		return err
	}

	lg.Info("training complete",
		zap.Int("rank", res.Rank),
		zap.String("took", res.TimeFrame.TookString),
	)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ds-launcher failed %v\n", err)
		os.Exit(exitCode)
	}
	os.Exit(0)
}
