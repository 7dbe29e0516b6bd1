package compiler

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Norgate-AV/aotc/internal/cache"
	"github.com/Norgate-AV/aotc/internal/compiler/mocks"
)

func TestVerifiedBuilder_ImpactAndVanish(t *testing.T) {
	cmd, err := verifiedFor("/out", "20.1.0").
		Impact("--no-fallback").
		Vanish("-J-Xmx4g").
		Impact("-H:+ReportExceptionStackTraces").
		ResultingExecutableName("app-runner").
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"native-image",
		"--no-fallback",
		"-J-Xmx4g",
		"-H:+ReportExceptionStackTraces",
		"app-runner",
	}, cmd.Command())

	assert.Equal(t, []string{
		"native-image.arg[000]",
		"native-image.arg[001]",
		"native-image.version",
		"native.os.type",
	}, cmd.Inputs().Keys())

	arg, _ := cmd.Inputs().Get("native-image.arg[001]")
	assert.Equal(t, "-H:+ReportExceptionStackTraces", arg)
	assert.Equal(t, "native-image --no-fallback -J-Xmx4g -H:+ReportExceptionStackTraces app-runner", cmd.String())
}

func TestVerifiedBuilder_FingerprintSensitivity(t *testing.T) {
	build := func(t *testing.T, configure func(*VerifiedBuilder)) string {
		t.Helper()

		b := verifiedFor("/out", "20.1.0")
		configure(b)

		cmd, err := b.Build()
		require.NoError(t, err)

		return cmd.Inputs().Digest()
	}

	base := build(t, func(b *VerifiedBuilder) {
		b.Impact("-H:-AddAllCharsets").Vanish("-J-Xmx2g").ResultingExecutableName("app-runner")
	})

	t.Run("vanish only difference keeps the digest", func(t *testing.T) {
		other := build(t, func(b *VerifiedBuilder) {
			b.Impact("-H:-AddAllCharsets").Vanish("-J-Xmx8g").Vanish("--no-server").ResultingExecutableName("other-runner")
		})
		assert.Equal(t, base, other)
	})

	t.Run("impact difference changes the digest", func(t *testing.T) {
		other := build(t, func(b *VerifiedBuilder) {
			b.Impact("-H:+AddAllCharsets").Vanish("-J-Xmx2g").ResultingExecutableName("app-runner")
		})
		assert.NotEqual(t, base, other)
	})

	t.Run("impact order matters", func(t *testing.T) {
		first := build(t, func(b *VerifiedBuilder) {
			b.Impact("-g").Impact("-H:-AddAllCharsets").ResultingExecutableName("app-runner")
		})
		second := build(t, func(b *VerifiedBuilder) {
			b.Impact("-H:-AddAllCharsets").Impact("-g").ResultingExecutableName("app-runner")
		})
		assert.NotEqual(t, first, second)
	})

	t.Run("version changes the digest", func(t *testing.T) {
		b := verifiedFor("/out", "20.2.0")
		b.Impact("-H:-AddAllCharsets").Vanish("-J-Xmx2g").ResultingExecutableName("app-runner")

		cmd, err := b.Build()
		require.NoError(t, err)
		assert.NotEqual(t, base, cmd.Inputs().Digest())
	})
}

func TestVerifiedBuilder_JarAndLibs(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "app-runner.jar"), []byte("jar v1"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(out, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "lib", "dep.jar"), []byte("dep v1"), 0o644))

	build := func(t *testing.T) *VerifiedCommand {
		t.Helper()

		cmd, err := verifiedFor(out, "20.1.0").
			Jar("app-runner.jar").
			Lib(filepath.Join("lib", "dep.jar")).
			ResultingExecutableName("app-runner").
			Build()
		require.NoError(t, err)

		return cmd
	}

	first := build(t)
	assert.Equal(t, []string{"native-image", "-jar", "app-runner.jar", "app-runner"}, first.Command())

	_, ok := first.Inputs().Get(jarKey)
	assert.True(t, ok)
	_, ok = first.Inputs().Get("native-image.lib[dep.jar].sha")
	assert.True(t, ok)

	// A changed library invalidates the fingerprint
	require.NoError(t, os.WriteFile(filepath.Join(out, "lib", "dep.jar"), []byte("dep v2"), 0o644))
	second := build(t)
	assert.NotEqual(t, first.Inputs().Digest(), second.Inputs().Digest())
}

func TestVerifiedBuilder_BuildErrors(t *testing.T) {
	t.Run("missing runner jar", func(t *testing.T) {
		_, err := verifiedFor(t.TempDir(), "20.1.0").
			Jar("missing.jar").
			ResultingExecutableName("app-runner").
			Build()
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Contains(t, err.Error(), "failed to hash runner jar")
	})

	t.Run("missing executable name", func(t *testing.T) {
		_, err := verifiedFor(t.TempDir(), "20.1.0").Build()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidCommand)
	})
}

// localBuild verifies a fake local native-image and prepares a build of
// app-runner.jar in a fresh output directory
func localBuild(t *testing.T, exitCode int, stderr *bytes.Buffer) (*VerifiedBuilder, string, string) {
	t.Helper()

	exe, log := fakeNativeImage(t, "20.1.0", exitCode)
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "app-runner.jar"), []byte("jar"), 0o644))

	initial, err := NewInitialBuilder().
		OutputDir(out).
		Executable(exe).
		Stdio(&bytes.Buffer{}, stderr).
		Build()
	require.NoError(t, err)

	verified, err := initial.VerifyVersion(context.Background())
	require.NoError(t, err)

	verified.
		Impact("-H:-AddAllCharsets").
		Jar("app-runner.jar").
		ResultingExecutableName("app-runner")

	return verified, out, log
}

func TestBuildNativeImage_Success(t *testing.T) {
	skipOnWindows(t)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var stderr bytes.Buffer
	builder, out, log := localBuild(t, 0, &stderr)

	artifactCache := mocks.NewMockArtifactCache(ctrl)
	builder.Cache(artifactCache)

	cmd, err := builder.Build()
	require.NoError(t, err)

	gomock.InOrder(
		artifactCache.EXPECT().Retrieve(cmd.Inputs()).Return(nil, nil),
		artifactCache.EXPECT().
			Store(cmd.Inputs(), filepath.Join(out, "app-runner"), filepath.Join(out, "app-runner.jar")).
			Return(nil),
	)

	require.NoError(t, cmd.BuildNativeImage(context.Background()))

	data, err := os.ReadFile(filepath.Join(out, "app-runner"))
	require.NoError(t, err)
	assert.Equal(t, "native image", string(data))

	// stderr goes to the parent and to the report
	assert.Contains(t, stderr.String(), "Error: unsupported feature")
	report, err := os.ReadFile(filepath.Join(out, ReportsDir, ErrorReportFile))
	require.NoError(t, err)
	assert.Equal(t, "Error: unsupported feature\n", string(report))

	assert.Equal(t, []string{"--version", "-H:-AddAllCharsets -jar app-runner.jar app-runner"}, readLog(t, log))
}

func TestBuildNativeImage_Failure(t *testing.T) {
	skipOnWindows(t)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var stderr bytes.Buffer
	builder, out, _ := localBuild(t, 3, &stderr)

	// Store must not be called for a failed build
	artifactCache := mocks.NewMockArtifactCache(ctrl)
	artifactCache.EXPECT().Retrieve(gomock.Any()).Return(nil, nil)

	cmd, err := builder.Cache(artifactCache).Build()
	require.NoError(t, err)

	err = cmd.BuildNativeImage(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuildFailed)
	assert.Contains(t, err.Error(), "exit code 3")

	report, err := os.ReadFile(filepath.Join(out, ReportsDir, ErrorReportFile))
	require.NoError(t, err)
	assert.Contains(t, string(report), "Error: unsupported feature")
}

func TestBuildNativeImage_WithoutCache(t *testing.T) {
	skipOnWindows(t)

	builder, out, _ := localBuild(t, 0, &bytes.Buffer{})

	cmd, err := builder.Build()
	require.NoError(t, err)

	require.NoError(t, cmd.BuildNativeImage(context.Background()))
	assert.FileExists(t, filepath.Join(out, "app-runner"))
}

func TestBuildNativeImage_CacheHitSkipsProcess(t *testing.T) {
	skipOnWindows(t)

	builder, out, log := localBuild(t, 0, &bytes.Buffer{})

	artifactCache, err := cache.New(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	cmd, err := builder.Cache(artifactCache).Build()
	require.NoError(t, err)

	cached := filepath.Join(t.TempDir(), "cached-runner")
	require.NoError(t, os.WriteFile(cached, []byte("cached image"), 0o755))
	require.NoError(t, artifactCache.Store(cmd.Inputs(), cached, filepath.Join(out, "app-runner.jar")))

	require.NoError(t, cmd.BuildNativeImage(context.Background()))

	data, err := os.ReadFile(cmd.ExecutablePath())
	require.NoError(t, err)
	assert.Equal(t, "cached image", string(data))

	// Only the version probe ran
	assert.Equal(t, []string{"--version"}, readLog(t, log))
	assert.NoFileExists(t, filepath.Join(out, ReportsDir, ErrorReportFile))
}

func TestBuildNativeImage_StoresIntoRealCache(t *testing.T) {
	skipOnWindows(t)

	builder, _, log := localBuild(t, 0, &bytes.Buffer{})

	artifactCache, err := cache.New(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	cmd, err := builder.Cache(artifactCache).Build()
	require.NoError(t, err)

	require.NoError(t, cmd.BuildNativeImage(context.Background()))

	entry, err := artifactCache.Retrieve(cmd.Inputs())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "app-runner.jar", entry.Metadata.RunnerJarName)

	// A second build of the same inputs is served from the cache
	require.NoError(t, os.Remove(cmd.ExecutablePath()))
	require.NoError(t, cmd.BuildNativeImage(context.Background()))
	assert.FileExists(t, cmd.ExecutablePath())
	assert.Len(t, readLog(t, log), 2)
}

func TestBuildNativeImage_Cancelled(t *testing.T) {
	skipOnWindows(t)

	builder, _, _ := localBuild(t, 0, &bytes.Buffer{})

	cmd, err := builder.Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = cmd.BuildNativeImage(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShutdownServer(t *testing.T) {
	skipOnWindows(t)

	builder, _, log := localBuild(t, 0, &bytes.Buffer{})

	cmd, err := builder.Build()
	require.NoError(t, err)

	require.NoError(t, cmd.ShutdownServer(context.Background()))
	assert.Equal(t, "-H:-AddAllCharsets -jar app-runner.jar app-runner --server-shutdown", readLog(t, log)[1])

	// Cancellation is logged, not returned
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, cmd.ShutdownServer(ctx))
}

func TestShutdownServer_MissingExecutable(t *testing.T) {
	cmd, err := verifiedFor(t.TempDir(), "20.1.0").ResultingExecutableName("app-runner").Build()
	require.NoError(t, err)

	cmd.execCommand = func(ctx context.Context, _ string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, filepath.Join(t.TempDir(), "missing"), args...)
	}

	assert.Error(t, cmd.ShutdownServer(context.Background()))
}
