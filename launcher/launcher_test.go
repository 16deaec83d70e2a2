package launcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildArgs(t *testing.T) {
	lc, err := New(Config{
		Logger: zap.NewExample(),
		Topology: Topology{
			NumGPUs:     4,
			Hosts:       []string{"h0"},
			CurrentHost: "h0",
		},
		TrainingScript: "train.py",
		Args:           []string{"--epochs", "3", "--deepspeed", "ds.json"},
	})
	require.NoError(t, err)

	args := lc.buildArgs()
	assert.Equal(t, []string{
		"deepspeed", "--num_gpus=4", "train.py",
		"--epochs", "3", "--deepspeed", "ds.json",
	}, args)
}

func TestNewRejectsEmptyScript(t *testing.T) {
	_, err := New(Config{Logger: zap.NewExample()})
	if err == nil {
		t.Fatal("expected error on empty training script")
	}
}

func TestRunRankFailureBeforeSpawn(t *testing.T) {
	lc, err := New(Config{
		Logger:         zap.NewExample(),
		Topology:       Topology{NumGPUs: 1, Hosts: []string{"a"}, CurrentHost: "z"},
		TrainingScript: "train.py",
		DeepSpeedPath:  "/nonexistent/deepspeed",
	})
	require.NoError(t, err)

	res, err := lc.Run(context.Background())
	if err == nil {
		t.Fatal("expected rank lookup error")
	}
	assert.Equal(t, -1, res.ExitCode)
}

func TestRunZeroGPUGate(t *testing.T) {
	cfg := Config{
		Logger:         zap.NewExample(),
		Topology:       Topology{NumGPUs: 0, Hosts: []string{"a"}, CurrentHost: "a"},
		TrainingScript: "train.py",
		DeepSpeedPath:  "true",
	}

	lc, err := New(cfg)
	require.NoError(t, err)
	if _, err = lc.Run(context.Background()); err == nil {
		t.Fatal("expected zero-GPU error without AllowCPUOnly")
	}

	cfg.AllowCPUOnly = true
	lc, err = New(cfg)
	require.NoError(t, err)
	res, err := lc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunPropagatesChildExit(t *testing.T) {
	lc, err := New(Config{
		Logger:         zap.NewExample(),
		Topology:       Topology{NumGPUs: 2, Hosts: []string{"a", "b"}, CurrentHost: "b"},
		TrainingScript: "train.py",
		DeepSpeedPath:  "false",
	})
	require.NoError(t, err)

	res, err := lc.Run(context.Background())
	if err == nil {
		t.Fatal("expected error on non-zero child exit")
	}
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, 1, res.Rank)
}

func TestRunMissingBinary(t *testing.T) {
	lc, err := New(Config{
		Logger:         zap.NewExample(),
		Topology:       Topology{NumGPUs: 1, Hosts: []string{"a"}, CurrentHost: "a"},
		TrainingScript: "train.py",
		DeepSpeedPath:  "/nonexistent/deepspeed",
	})
	require.NoError(t, err)

	res, err := lc.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	assert.Equal(t, -1, res.ExitCode)
}
