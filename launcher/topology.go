// Package launcher runs DeepSpeed training inside a SageMaker training container.
package launcher

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// Environment variables set by the SageMaker training platform on every node.
// https://github.com/aws/sagemaker-training-toolkit/blob/master/ENVIRONMENT_VARIABLES.md
const (
	EnvNumGPUs     = "SM_NUM_GPUS"
	EnvHosts       = "SM_HOSTS"
	EnvCurrentHost = "SM_CURRENT_HOST"

	// EnvAllowCPUOnly is 'true' to permit launching with zero GPUs.
	EnvAllowCPUOnly = "DS_LAUNCHER_ALLOW_CPU_ONLY"
	// EnvLogLevel overrides the launcher log level. Default 'info'.
	EnvLogLevel = "DS_LAUNCHER_LOG_LEVEL"
)

// Topology is the cluster topology snapshot of one training node,
// read once from the environment at process start.
type Topology struct {
	// NumGPUs is the GPU count on this node.
	NumGPUs int
	// Hosts lists all host identifiers in the cluster.
	Hosts []string
	// CurrentHost is this node's host identifier.
	CurrentHost string
}

// ParseTopology reads the topology from SM_* environment variables.
// Missing variables fall back to zero values, loudly: each fallback is
// logged at warn level so a degenerate single-node, zero-GPU launch is
// visible in the training logs.
func ParseTopology(lg *zap.Logger) (Topology, error) {
	tp := Topology{}

	if sv := os.Getenv(EnvNumGPUs); sv == "" {
		lg.Warn("environment variable not set; defaulting to zero GPUs", zap.String("key", EnvNumGPUs))
	} else {
		n, err := strconv.Atoi(sv)
		if err != nil {
			return Topology{}, fmt.Errorf("failed to parse %s=%q (%v)", EnvNumGPUs, sv, err)
		}
		if n < 0 {
			return Topology{}, fmt.Errorf("invalid %s=%q", EnvNumGPUs, sv)
		}
		tp.NumGPUs = n
	}

	if sv := os.Getenv(EnvHosts); sv == "" {
		lg.Warn("environment variable not set; defaulting to empty host list", zap.String("key", EnvHosts))
	} else if err := json.Unmarshal([]byte(sv), &tp.Hosts); err != nil {
		return Topology{}, fmt.Errorf("failed to parse %s=%q (%v)", EnvHosts, sv, err)
	}

	if tp.CurrentHost = os.Getenv(EnvCurrentHost); tp.CurrentHost == "" {
		lg.Warn("environment variable not set; defaulting to empty host", zap.String("key", EnvCurrentHost))
	}

	lg.Info("parsed topology",
		zap.Int("num-gpus", tp.NumGPUs),
		zap.Int("num-nodes", tp.NumNodes()),
		zap.Strings("hosts", tp.Hosts),
		zap.String("current-host", tp.CurrentHost),
	)
	return tp, nil
}

// NumNodes returns the number of nodes in the cluster.
func (tp Topology) NumNodes() int {
	return len(tp.Hosts)
}

// Rank returns the zero-based position of the current host among all hosts.
// Unlike the topology fallbacks, a current host absent from the host list
// is an error, never a default.
func (tp Topology) Rank() (int, error) {
	for i, h := range tp.Hosts {
		if h == tp.CurrentHost {
			return i, nil
		}
	}
	return 0, fmt.Errorf("current host %q not found in host list %v", tp.CurrentHost, tp.Hosts)
}
