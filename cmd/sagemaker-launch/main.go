// sagemaker-launch is a set of SageMaker DeepSpeed training job commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/philschmid/deepspeed-sagemaker-example/cmd/sagemaker-launch/submit"
	"github.com/philschmid/deepspeed-sagemaker-example/cmd/sagemaker-launch/version"
)

var rootCmd = &cobra.Command{
	Use:        "sagemaker-launch",
	Short:      "SageMaker DeepSpeed training job CLI",
	SuggestFor: []string{"sagemaker-launcher"},
}

func init() {
	cobra.EnablePrefixMatching = true
}

func init() {
	rootCmd.AddCommand(
		submit.NewCommand(),
		version.NewCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sagemaker-launch failed %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}
