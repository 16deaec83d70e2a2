package launchconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRoundTrip(t *testing.T) {
	cfg := NewDefault()
	cfg.ConfigPath = filepath.Join(t.TempDir(), "config.yaml")
	cfg.SourceDir = t.TempDir()
	require.NoError(t, cfg.ValidateAndSetDefaults())

	loaded, err := Load(cfg.ConfigPath)
	require.NoError(t, err)

	assert.Equal(t, cfg.Name, loaded.Name)
	assert.Equal(t, cfg.Region, loaded.Region)
	assert.Equal(t, cfg.Hyperparameters, loaded.Hyperparameters)
	assert.Equal(t, cfg.TrainingImage, loaded.TrainingImage)
}

func TestValidateDefaults(t *testing.T) {
	cfg := NewDefault()
	cfg.ConfigPath = filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.ValidateAndSetDefaults())

	// DLC image derived from the transformers/pytorch/py triple
	assert.Contains(t, cfg.TrainingImage, "huggingface-pytorch-training:1.10.2-transformers4.17.0-gpu-py38")
	assert.Contains(t, cfg.TrainingImage, cfg.Region)

	// job-named log file appended
	found := false
	for _, p := range cfg.LogOutputs {
		if filepath.Ext(p) == ".log" && strings.Contains(p, cfg.Name) {
			found = true
		}
	}
	assert.True(t, found, "expected a job-named .log output, got %v", cfg.LogOutputs)

	assert.Equal(t, int32(DefaultVolumeSize), cfg.VolumeSize)
	assert.Equal(t, DefaultMaxRuntime, cfg.MaxRuntime)
}

func TestValidateRejects(t *testing.T) {
	tt := []struct {
		name   string
		mutate func(*Config)
	}{
		{"upper-case name", func(c *Config) { c.Name = "DeepSpeed-Job" }},
		{"bad region", func(c *Config) { c.Region = "nowhere" }},
		{"bad partition", func(c *Config) { c.Partition = "aws-moon" }},
		{"non-ml instance type", func(c *Config) { c.InstanceType = "p3.2xlarge" }},
		{"zero instances", func(c *Config) { c.InstanceCount = 0 }},
		{"empty role", func(c *Config) { c.RoleName = "" }},
		{"absolute entry point", func(c *Config) { c.EntryPoint = "/opt/ml/code/train.py" }},
		{"reserved hyperparameter", func(c *Config) {
			c.Hyperparameters["sagemaker_program"] = "x.py"
		}},
		{"unknown image triple", func(c *Config) { c.TransformersVersion = "3.0" }},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefault()
			cfg.ConfigPath = filepath.Join(t.TempDir(), "config.yaml")
			tc.mutate(cfg)
			if err := cfg.ValidateAndSetDefaults(); err == nil {
				t.Fatalf("expected validation error for %q", tc.name)
			}
		})
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(p, []byte("name: x\nbogus-field: y\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = Load(p); err == nil {
		t.Fatal("expected unknown field error")
	}
}
