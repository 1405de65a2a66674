package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dkoosis/snap/internal/runner"
	"github.com/dkoosis/snap/pkg/store"
)

// FileName is the config file looked up in the project root and the user
// config directory.
const FileName = ".snap.yaml"

// Defaults.
const (
	DefaultSnapshotDir = store.DefaultDir
	DefaultSnapshotExt = store.DefaultExt
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultTheme       = "default"
)

// RunnerConfig configures the test command.
type RunnerConfig struct {
	Command []string `yaml:"command"`
	Verbose bool     `yaml:"verbose"`
}

// SnapshotsConfig configures snapshot file placement.
type SnapshotsConfig struct {
	Dir string `yaml:"dir"`
	Ext string `yaml:"ext"`
}

// LogConfig configures diagnostics on stderr.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FileConfig is the contents of .snap.yaml.
type FileConfig struct {
	Runner    RunnerConfig    `yaml:"runner"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Ignore    []string        `yaml:"ignore"`
	Log       LogConfig       `yaml:"log"`
	Theme     string          `yaml:"theme"`
	NoColor   bool            `yaml:"no_color"`
	CI        bool            `yaml:"ci"`
}

// Defaults returns the configuration used when no file is found.
func Defaults() *FileConfig {
	return &FileConfig{
		Runner:    RunnerConfig{Command: append([]string(nil), runner.DefaultCommand...)},
		Snapshots: SnapshotsConfig{Dir: DefaultSnapshotDir, Ext: DefaultSnapshotExt},
		Log:       LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Theme:     DefaultTheme,
	}
}

// Load reads the first config file found for root and merges it over the
// defaults. It returns the path used, or "" when none exists. A file that
// exists but cannot be read or parsed is an error.
func Load(root string) (*FileConfig, string, error) {
	cfg := Defaults()
	path := getConfigPath(root)
	if path == "" {
		return cfg, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("reading config %s: %w", path, err)
	}
	var fromFile FileConfig
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, path, fmt.Errorf("parsing config %s: %w", path, err)
	}
	merge(cfg, &fromFile)
	return cfg, path, nil
}

func merge(dst, src *FileConfig) {
	if len(src.Runner.Command) > 0 {
		dst.Runner.Command = src.Runner.Command
	}
	dst.Runner.Verbose = src.Runner.Verbose
	if src.Snapshots.Dir != "" {
		dst.Snapshots.Dir = src.Snapshots.Dir
	}
	if src.Snapshots.Ext != "" {
		dst.Snapshots.Ext = src.Snapshots.Ext
	}
	if src.Ignore != nil {
		dst.Ignore = src.Ignore
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
	if src.Theme != "" {
		dst.Theme = src.Theme
	}
	dst.NoColor = src.NoColor
	dst.CI = src.CI
}

// getConfigPath checks the project root first, then the user config
// directory ($XDG_CONFIG_HOME/snap on Linux).
func getConfigPath(root string) string {
	if root != "" {
		local := filepath.Join(root, FileName)
		if _, err := os.Stat(local); err == nil {
			return local
		}
	}

	configHome, err := os.UserConfigDir()
	if err != nil || configHome == "" || configHome == "/" {
		return ""
	}
	xdgPath := filepath.Join(configHome, "snap", FileName)
	if _, err := os.Stat(xdgPath); err == nil {
		return xdgPath
	} else if !errors.Is(err, fs.ErrNotExist) {
		return xdgPath // let Load report the real error
	}
	return ""
}
