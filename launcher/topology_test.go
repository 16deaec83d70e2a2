package launcher

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRank(t *testing.T) {
	tp := Topology{Hosts: []string{"a", "b", "c"}, CurrentHost: "b"}
	rank, err := tp.Rank()
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	tp = Topology{Hosts: []string{"algo-1"}, CurrentHost: "algo-1"}
	rank, err = tp.Rank()
	require.NoError(t, err)
	assert.Equal(t, 0, rank)
}

func TestRankHostNotFound(t *testing.T) {
	tp := Topology{Hosts: []string{"a", "b", "c"}, CurrentHost: "z"}
	if _, err := tp.Rank(); err == nil {
		t.Fatal("expected lookup error for host absent from the host list")
	}

	// degenerate empty cluster must error too, not default
	tp = Topology{}
	if _, err := tp.Rank(); err == nil {
		t.Fatal("expected lookup error for empty host list")
	}
}

func TestParseTopology(t *testing.T) {
	os.Setenv(EnvNumGPUs, "4")
	defer os.Unsetenv(EnvNumGPUs)
	os.Setenv(EnvHosts, `["algo-1","algo-2"]`)
	defer os.Unsetenv(EnvHosts)
	os.Setenv(EnvCurrentHost, "algo-2")
	defer os.Unsetenv(EnvCurrentHost)

	tp, err := ParseTopology(zap.NewExample())
	require.NoError(t, err)
	assert.Equal(t, 4, tp.NumGPUs)
	assert.Equal(t, []string{"algo-1", "algo-2"}, tp.Hosts)
	assert.Equal(t, "algo-2", tp.CurrentHost)
	assert.Equal(t, 2, tp.NumNodes())

	rank, err := tp.Rank()
	require.NoError(t, err)
	assert.Equal(t, 1, rank)
}

func TestParseTopologyDefaults(t *testing.T) {
	os.Unsetenv(EnvNumGPUs)
	os.Unsetenv(EnvHosts)
	os.Unsetenv(EnvCurrentHost)

	tp, err := ParseTopology(zap.NewExample())
	require.NoError(t, err)
	assert.Equal(t, 0, tp.NumGPUs)
	assert.Equal(t, 0, tp.NumNodes())
	assert.Equal(t, "", tp.CurrentHost)
}

func TestParseTopologyInvalid(t *testing.T) {
	os.Setenv(EnvNumGPUs, "four")
	defer os.Unsetenv(EnvNumGPUs)

	if _, err := ParseTopology(zap.NewExample()); err == nil {
		t.Fatal("expected parse error")
	}

	os.Setenv(EnvNumGPUs, "4")
	os.Setenv(EnvHosts, `algo-1,algo-2`)
	defer os.Unsetenv(EnvHosts)

	if _, err := ParseTopology(zap.NewExample()); err == nil {
		t.Fatal("expected JSON parse error")
	}
}
