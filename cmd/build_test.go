package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/aotc/internal/nativebuild"
)

// execute runs the CLI with args against isolated configuration
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	// Keep global configuration out of the test
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateRunnerJar(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "app-runner.jar")
	require.NoError(t, os.WriteFile(jar, []byte("jar"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.jar"), 0o755))

	tests := []struct {
		name        string
		args        []string
		errContains string
	}{
		{"valid jar", []string{jar}, ""},
		{"no argument", nil, "exactly one runner jar"},
		{"two arguments", []string{jar, jar}, "exactly one runner jar"},
		{"wrong extension", []string{filepath.Join(dir, "app.war")}, "must be a .jar"},
		{"missing jar", []string{filepath.Join(dir, "missing.jar")}, "not found"},
		{"directory", []string{filepath.Join(dir, "dir.jar")}, "is a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abs, err := validateRunnerJar(tt.args)

			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, jar, abs)
		})
	}
}

func TestSystemProperties(t *testing.T) {
	props := systemProperties(
		map[string]string{"a": "config", "b": "config"},
		[]string{"b=flag", "c", "=ignored"},
	)

	assert.Equal(t, []nativebuild.SystemProperty{
		{Key: "a", Value: "config"},
		{Key: "b", Value: "flag"},
		{Key: "c"},
	}, props)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{300 * 1024 * 1024, "300.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in), "formatBytes(%d)", tt.in)
	}
}

func TestRunBuild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake native-image is a shell script")
	}

	bin := t.TempDir()
	exe := filepath.Join(bin, "native-image")
	script := `#!/bin/sh
for last; do :; done
if [ "$last" = "--version" ]; then
  echo "GraalVM Version 20.1.0"
  exit 0
fi
printf 'native image' > "$last"
`
	require.NoError(t, os.WriteFile(exe, []byte(script), 0o755))

	jarDir := t.TempDir()
	jar := filepath.Join(jarDir, "app-runner.jar")
	require.NoError(t, os.WriteFile(jar, []byte("jar"), 0o644))

	cacheDir := filepath.Join(t.TempDir(), "cache")
	outDir := filepath.Join(t.TempDir(), "dist")

	out, err := execute(t, "build", jar,
		"--native-image-path", exe,
		"--cache-dir", cacheDir,
		"--output-dir", outDir,
		"-D", "app.mode=native",
	)
	require.NoError(t, err)

	want := filepath.Join(outDir, "app-runner")
	assert.Equal(t, want, strings.TrimSpace(out))
	assert.FileExists(t, want)

	out, err = execute(t, "cache", "stats", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Entries: 1\n")

	out, err = execute(t, "cache", "clear", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Cache cleared")

	out, err = execute(t, "cache", "stats", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Entries: 0\n")
}

func TestRunBuild_RejectsNonJar(t *testing.T) {
	_, err := execute(t, "build", "app.usp")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a .jar")
}

func TestCacheGC(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")

	_, err := execute(t, "cache", "gc", "--cache-dir", cacheDir)
	require.NoError(t, err)

	assert.DirExists(t, cacheDir)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "aotc "), out)
	assert.Contains(t, out, fmt.Sprintf("(%s)", "none"))
}
