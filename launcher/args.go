package launcher

import "strings"

// flagTrainingScript is the one option the launcher recognizes; everything
// else belongs to the training program.
const flagTrainingScript = "--training_script"

// SplitArgs splits argv into the recognized training script path and the
// arguments forwarded to the training process. Forwarded arguments are kept
// verbatim and in their original order. pflag is not used here on purpose:
// it drops unknown flags instead of preserving them.
func SplitArgs(args []string) (trainingScript string, passthrough []string) {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == flagTrainingScript:
			if i+1 < len(args) {
				trainingScript = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], flagTrainingScript+"="):
			trainingScript = strings.TrimPrefix(args[i], flagTrainingScript+"=")
		default:
			passthrough = append(passthrough, args[i])
		}
	}
	return trainingScript, passthrough
}
