// Package version implements "sagemaker-launch version" command.
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/philschmid/deepspeed-sagemaker-example/version"
)

func init() {
	cobra.EnablePrefixMatching = true
}

// NewCommand implements "sagemaker-launch version" command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints out sagemaker-launch version",
		Run:   versionFunc,
	}
}

func versionFunc(cmd *cobra.Command, args []string) {
	fmt.Printf(`GitCommit: %s
ReleaseVersion: %s
BuildTime: %s
`,
		version.GitCommit,
		version.ReleaseVersion,
		version.BuildTime,
	)
}
