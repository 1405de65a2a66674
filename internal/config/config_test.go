package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/snap/internal/runner"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	isolate(t)

	cfg, path, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, runner.DefaultCommand, cfg.Runner.Command)
}

func TestLoad_LocalFileMergesOverDefaults(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	doc := "runner:\n  command: [make, snap-test, \"PKG={pkg}\"]\nsnapshots:\n  ext: .yaml\nignore: [testdata, build]\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(doc), 0o644))

	cfg, path, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, FileName), path)
	assert.Equal(t, []string{"make", "snap-test", "PKG={pkg}"}, cfg.Runner.Command)
	assert.Equal(t, DefaultSnapshotDir, cfg.Snapshots.Dir)
	assert.Equal(t, ".yaml", cfg.Snapshots.Ext)
	assert.Equal(t, []string{"testdata", "build"}, cfg.Ignore)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
}

func TestLoad_UserConfigDirFallback(t *testing.T) {
	isolate(t)
	xdg := os.Getenv("XDG_CONFIG_HOME")
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "snap"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "snap", FileName), []byte("theme: orca\n"), 0o644))

	cfg, path, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "snap", FileName), path)
	assert.Equal(t, "orca", cfg.Theme)
}

func TestLoad_LocalBeatsUserConfig(t *testing.T) {
	isolate(t)
	xdg := os.Getenv("XDG_CONFIG_HOME")
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "snap"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "snap", FileName), []byte("theme: orca\n"), 0o644))
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("theme: mono\n"), 0o644))

	cfg, _, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "mono", cfg.Theme)
}

func TestLoad_MalformedFileIsAnError(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("runner: [oops\n"), 0o644))

	_, path, err := Load(root)
	require.Error(t, err)
	assert.Equal(t, filepath.Join(root, FileName), path)
	assert.Contains(t, err.Error(), "parsing config")
}
