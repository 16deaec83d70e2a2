package launcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitArgs(t *testing.T) {
	tt := []struct {
		name        string
		args        []string
		script      string
		passthrough []string
	}{
		{
			name:        "separate value",
			args:        []string{"--training_script", "train.py", "--epochs", "3"},
			script:      "train.py",
			passthrough: []string{"--epochs", "3"},
		},
		{
			name:        "equals value",
			args:        []string{"--training_script=scripts/run_glue.py", "--deepspeed", "configs/ds_z3_offload.json"},
			script:      "scripts/run_glue.py",
			passthrough: []string{"--deepspeed", "configs/ds_z3_offload.json"},
		},
		{
			name:   "order preserved verbatim",
			args:   []string{"--b", "2", "--training_script", "t.py", "--a", "1", "positional", "--flag=with=equals"},
			script: "t.py",
			passthrough: []string{
				"--b", "2", "--a", "1", "positional", "--flag=with=equals",
			},
		},
		{
			name:        "no script",
			args:        []string{"--epochs", "3"},
			script:      "",
			passthrough: []string{"--epochs", "3"},
		},
		{
			name:        "empty",
			args:        nil,
			script:      "",
			passthrough: nil,
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			script, rest := SplitArgs(tc.args)
			assert.Equal(t, tc.script, script)
			assert.Equal(t, tc.passthrough, rest)
		})
	}
}
