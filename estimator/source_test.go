package estimator

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ds_launcher.py"), []byte("print('hi')\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", "run_glue.py"), []byte("train\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref\n"), 0644))

	d, err := packSource(dir, "ds_launcher.py")
	require.NoError(t, err)

	gr, err := gzip.NewReader(bytes.NewReader(d))
	require.NoError(t, err)
	tr := tar.NewReader(gr)

	names := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(tr)
		require.NoError(t, err)
		names[hdr.Name] = string(b)
	}

	assert.Equal(t, "print('hi')\n", names["ds_launcher.py"])
	assert.Equal(t, "train\n", names["scripts/run_glue.py"])
	_, hasGit := names[".git/HEAD"]
	assert.False(t, hasGit, "hidden directories must be skipped")
}

func TestPackSourceMissingEntryPoint(t *testing.T) {
	if _, err := packSource(t.TempDir(), "ds_launcher.py"); err == nil {
		t.Fatal("expected error for missing entry point")
	}
}
