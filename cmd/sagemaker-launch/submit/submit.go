// Package submit implements "sagemaker-launch submit" commands.
package submit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/philschmid/deepspeed-sagemaker-example/estimator"
	"github.com/philschmid/deepspeed-sagemaker-example/launchconfig"
	"github.com/philschmid/deepspeed-sagemaker-example/pkg/fileutil"
	"github.com/philschmid/deepspeed-sagemaker-example/pkg/randutil"
)

var (
	path         string
	autoPath     bool
	enablePrompt bool
)

// NewCommand implements "sagemaker-launch submit" command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:        "submit",
		Short:      "Training job submit commands",
		SuggestFor: []string{"sumbit"},
	}
	cmd.PersistentFlags().StringVarP(&path, "path", "p", "", "training job configuration file path")
	cmd.PersistentFlags().BoolVarP(&autoPath, "auto-path", "a", false, "'true' to auto-generate path for job config, overwrites existing --path value")
	cmd.PersistentFlags().BoolVarP(&enablePrompt, "enable-prompt", "e", true, "'true' to enable prompt mode")
	cmd.AddCommand(
		newSubmitConfig(),
		newSubmitJob(),
	)
	return cmd
}

func newSubmitConfig() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Writes a training job configuration with default values",
		Long:  "Configuration values are overwritten by environment variables.",
		Run:   submitConfigFunc,
	}
}

func submitConfigFunc(cmd *cobra.Command, args []string) {
	if autoPath {
		path = filepath.Join(os.TempDir(), randutil.String(15)+".yaml")
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "'--path' flag is not specified")
		os.Exit(1)
	}
	cfg := launchconfig.NewDefault()
	cfg.ConfigPath = path
	cfg.Sync()

	fmt.Printf("\n*********************************\n")
	fmt.Printf("overwriting config file from environment variables...\n")
	if err := cfg.UpdateFromEnvs(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from environment variables: %v", err)
		os.Exit(1)
	}

	if err := cfg.ValidateAndSetDefaults(); err != nil {
		fmt.Printf("\n*********************************\n")
		fmt.Printf("'sagemaker-launch submit config' fail %v\n", err)
		os.Exit(1)
	}

	txt, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read configuration %q (%v)\n", path, err)
		os.Exit(1)
	}
	println()
	fmt.Println(string(txt))
	println()

	fmt.Printf("\n*********************************\n")
	fmt.Printf("'sagemaker-launch submit config' success\n")
}

func newSubmitJob() *cobra.Command {
	return &cobra.Command{
		Use:   "job",
		Short: "Submit a training job and wait for completion",
		Long:  "Configuration values are overwritten by environment variables.",
		Run:   submitJobFunc,
	}
}

func submitJobFunc(cmd *cobra.Command, args []string) {
	if autoPath {
		path = filepath.Join(os.TempDir(), randutil.String(15)+".yaml")
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "'--path' flag is not specified")
		os.Exit(1)
	}

	var cfg *launchconfig.Config
	var err error
	if fileutil.Exist(path) {
		cfg, err = launchconfig.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load configuration %q (%v)\n", path, err)
			os.Exit(1)
		}
	} else {
		cfg = launchconfig.NewDefault()
		cfg.ConfigPath = path
	}

	if err = cfg.UpdateFromEnvs(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from environment variables: %v\n", err)
		os.Exit(1)
	}
	if err = cfg.ValidateAndSetDefaults(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to validate configuration %q (%v)\n", path, err)
		os.Exit(1)
	}

	txt, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read configuration %q (%v)\n", path, err)
		os.Exit(1)
	}
	println()
	fmt.Println(string(txt))
	println()

	if enablePrompt {
		prompt := promptui.Select{
			Label: "Ready to submit the training job, resources will be billed, should we continue?",
			Items: []string{
				"No, cancel it!",
				"Yes, let's submit!",
			},
		}
		idx, answer, err := prompt.Run()
		if err != nil {
			panic(err)
		}
		if idx != 1 {
			fmt.Printf("returning 'submit' [index %d, answer %q]\n", idx, answer)
			return
		}
	}

	ts, err := estimator.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create estimator %v\n", err)
		os.Exit(1)
	}
	defer ts.Close()

	if err = ts.Fit(context.Background()); err != nil {
		fmt.Printf("\n*********************************\n")
		fmt.Printf("'sagemaker-launch submit job' fail %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n*********************************\n")
	fmt.Printf("'sagemaker-launch submit job' success\n")
}
