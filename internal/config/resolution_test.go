package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SNAP_THEME", "SNAP_NO_COLOR", "NO_COLOR", "SNAP_CI", "CI",
	"SNAP_VERBOSE", "SNAP_DEBUG", "SNAP_LOG_LEVEL", "SNAP_LOG_FORMAT",
}

// isolate clears every variable Resolve reads and points the user config
// directory at an empty temp dir.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("HOME", home)
}

func TestResolve_PriorityOrder(t *testing.T) {
	tests := []struct {
		name              string
		file              string
		flags             Flags
		envVars           map[string]string
		wantTheme         string
		wantThemeSource   string
		wantNoColorSource string
		wantLevel         string
	}{
		{
			name:              "defaults without file",
			wantTheme:         "default",
			wantThemeSource:   "default",
			wantNoColorSource: "default",
			wantLevel:         "info",
		},
		{
			name:              "file over defaults",
			file:              "theme: orca\nlog:\n  level: warn\n",
			wantTheme:         "orca",
			wantThemeSource:   "file",
			wantNoColorSource: "file",
			wantLevel:         "warn",
		},
		{
			name:              "env over file",
			file:              "theme: orca\n",
			envVars:           map[string]string{"SNAP_THEME": "default", "SNAP_LOG_LEVEL": "ERROR"},
			wantTheme:         "default",
			wantThemeSource:   "env",
			wantNoColorSource: "file",
			wantLevel:         "error",
		},
		{
			name:              "CLI over env",
			flags:             Flags{Theme: "orca", LogLevel: "warn"},
			envVars:           map[string]string{"SNAP_THEME": "default", "SNAP_LOG_LEVEL": "error"},
			wantTheme:         "orca",
			wantThemeSource:   "cli",
			wantNoColorSource: "default",
			wantLevel:         "warn",
		},
		{
			name:              "NO_COLOR forces mono",
			flags:             Flags{Theme: "orca"},
			envVars:           map[string]string{"NO_COLOR": "1"},
			wantTheme:         "mono",
			wantThemeSource:   "cli",
			wantNoColorSource: "env",
			wantLevel:         "info",
		},
		{
			name:              "CLI no-color false beats env",
			flags:             Flags{NoColor: false, NoColorSet: true},
			envVars:           map[string]string{"NO_COLOR": "true"},
			wantTheme:         "default",
			wantThemeSource:   "default",
			wantNoColorSource: "cli",
			wantLevel:         "info",
		},
		{
			name:              "SNAP_DEBUG enables debug",
			envVars:           map[string]string{"SNAP_DEBUG": "1", "SNAP_LOG_LEVEL": "error"},
			wantTheme:         "default",
			wantThemeSource:   "default",
			wantNoColorSource: "default",
			wantLevel:         "debug",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			root := t.TempDir()
			if tt.file != "" {
				require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(tt.file), 0o644))
			}

			got, err := Resolve(root, tt.flags)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTheme, got.Theme)
			assert.Equal(t, tt.wantThemeSource, got.ThemeSource)
			assert.Equal(t, tt.wantNoColorSource, got.NoColorSource)
			assert.Equal(t, tt.wantLevel, got.LogLevel)
		})
	}
}

func TestResolve_CIImpliesNoColor(t *testing.T) {
	isolate(t)
	t.Setenv("CI", "true")

	got, err := Resolve(t.TempDir(), Flags{})
	require.NoError(t, err)
	assert.True(t, got.CI)
	assert.Equal(t, "env", got.CISource)
	assert.True(t, got.NoColor)
	assert.Equal(t, "mono", got.Theme)
}

func TestResolve_Verbose(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("runner:\n  verbose: true\n"), 0o644))

	got, err := Resolve(root, Flags{})
	require.NoError(t, err)
	assert.True(t, got.Verbose)

	got, err = Resolve(root, Flags{Verbose: false, VerboseSet: true})
	require.NoError(t, err)
	assert.False(t, got.Verbose)
}

func TestResolve_Validation(t *testing.T) {
	tests := map[string]string{
		"empty command":   "runner:\n  command: [\"\"]\n",
		"nested dir":      "snapshots:\n  dir: a/b\n",
		"ext without dot": "snapshots:\n  ext: snap\n",
		"bad level":       "log:\n  level: loud\n",
		"bad format":      "log:\n  format: xml\n",
		"bad theme":       "theme: neon\n",
	}
	for name, file := range tests {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(file), 0o644))

			_, err := Resolve(root, Flags{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
		})
	}
}
