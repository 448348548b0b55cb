package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jilei-hao/scherzo/pkg/isosurface"
)

// TestDefaultConfig verifies the defaults match the generation defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, isosurface.DefaultOptions(), cfg.Generation)
	assert.Equal(t, runtime.NumCPU(), cfg.Processing.NumWorkers)
	assert.Equal(t, 64, cfg.Processing.CacheSizeMB)
	assert.True(t, cfg.Processing.ReleaseSource)
	assert.Equal(t, "binary", cfg.Export.Format)
	assert.NoError(t, cfg.Validate())
}

// TestLoadMissing verifies a missing file yields the defaults
func TestLoadMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

// TestRoundTrip verifies saved files load back unchanged in both formats
func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"scherzo.yaml", "scherzo.toml"} {
		t.Run(name, func(t *testing.T) {
			want := DefaultConfig()
			want.Generation.ApplyRASTransform = true
			want.Generation.SmoothingIterations = 20
			want.Processing.NumWorkers = 3
			want.Logging.Logfile = "scherzo.log"
			want.Logging.Verbose = true
			want.Export.Driver = "s3"
			want.Export.Bucket = "meshes"
			want.Export.PathStyle = true
			want.Colors.Overrides = map[string]string{"3": "#ff8000"}

			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, SaveConfig(want, path))

			got, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

// TestPartialFile verifies omitted keys keep their defaults
func TestPartialFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "partial.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("generation:\n  gaussianSigma: 1.5\nunknown: 1\n"), 0644))
	cfg, err := LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 1.5, cfg.Generation.GaussianSigma)
	assert.Equal(t, 50, cfg.Generation.SmoothingIterations)
	assert.Equal(t, "fs", cfg.Export.Driver)

	tomlPath := filepath.Join(dir, "partial.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("[processing]\nnum_workers = 2\n"), 0644))
	cfg, err = LoadConfig(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Processing.NumWorkers)
	assert.Equal(t, 0.7, cfg.Generation.DecimationTargetReduction)
}

// TestLoadInvalid verifies bad values and syntax are rejected
func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"driver.yaml":   "export:\n  driver: ftp\n",
		"bucket.yaml":   "export:\n  driver: s3\n",
		"format.yaml":   "export:\n  format: obj\n",
		"preset.yaml":   "colors:\n  preset: rainbow\n",
		"options.yaml":  "generation:\n  smoothingPassband: 3\n",
		"syntax.yaml":   "generation: [\n",
		"syntax.toml":   "[processing\n",
		"negative.toml": "[processing]\ncache_size_mb = -1\n",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		_, err := LoadConfig(path)
		assert.Error(t, err, name)
	}
}
