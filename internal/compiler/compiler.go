package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"github.com/Norgate-AV/aotc/internal/codes"
	"github.com/Norgate-AV/aotc/internal/digest"
	"github.com/Norgate-AV/aotc/internal/fingerprint"
)

const (
	versionKey = "native-image.version"
	jarKey     = "native-image.jar.sha"

	// ReportsDir is created in the output directory for build diagnostics
	ReportsDir = "reports"

	// ErrorReportFile receives everything native-image writes to stderr
	ErrorReportFile = "native-image-errors.txt"

	serverShutdownArg = "--server-shutdown"
)

// VerifiedBuilder accumulates build arguments for a native-image whose
// version has been checked
type VerifiedBuilder struct {
	process

	command        []string
	inputs         *fingerprint.Builder
	version        string
	impactCounter  int
	executableName string
	runnerJarName  string
	cache          ArtifactCache
	err            error
}

func newVerifiedBuilder(c *InitialCommand, version string) *VerifiedBuilder {
	return &VerifiedBuilder{
		process: c.process,
		command: slices.Clone(c.command),
		inputs:  fingerprint.NewBuilder().Entries(c.inputs).Entry(versionKey, version),
		version: version,
	}
}

// Version returns the verified native-image version
func (b *VerifiedBuilder) Version() string {
	return b.version
}

// Impact appends an argument that affects the produced image. It is also
// recorded in the fingerprint under its position among impact arguments.
func (b *VerifiedBuilder) Impact(arg string) *VerifiedBuilder {
	b.command = append(b.command, arg)
	b.inputs.Entry(fmt.Sprintf("native-image.arg[%03d]", b.impactCounter), arg)
	b.impactCounter++
	return b
}

// Vanish appends an argument that does not affect the produced image
func (b *VerifiedBuilder) Vanish(arg string) *VerifiedBuilder {
	b.command = append(b.command, arg)
	return b
}

// Jar builds from the runner jar name, resolved against the output
// directory. Its content digest is part of the fingerprint.
func (b *VerifiedBuilder) Jar(runnerJarName string) *VerifiedBuilder {
	b.command = append(b.command, "-jar", runnerJarName)
	b.runnerJarName = runnerJarName

	sum, err := digest.File(b.resolve(runnerJarName))
	if err != nil {
		b.fail(zerr.Wrap(err, "failed to hash runner jar"))
		return b
	}

	b.inputs.Entry(jarKey, sum)
	return b
}

// Lib records the content digest of a library the runner jar depends on.
// Nothing is added to the command line.
func (b *VerifiedBuilder) Lib(path string) *VerifiedBuilder {
	sum, err := digest.File(b.resolve(path))
	if err != nil {
		b.fail(zerr.Wrap(err, "failed to hash library"))
		return b
	}

	b.inputs.Entry("native-image.lib["+filepath.Base(path)+"].sha", sum)
	return b
}

// ResultingExecutableName names the image native-image writes into the
// output directory
func (b *VerifiedBuilder) ResultingExecutableName(name string) *VerifiedBuilder {
	b.executableName = name
	return b.Vanish(name)
}

// Cache reuses and stores images through c
func (b *VerifiedBuilder) Cache(c ArtifactCache) *VerifiedBuilder {
	b.cache = c
	return b
}

// Build returns the final command, or the first error hit while adding arguments
func (b *VerifiedBuilder) Build() (*VerifiedCommand, error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.executableName == "" {
		return nil, zerr.Wrap(ErrInvalidCommand, "no resulting executable name configured")
	}

	return &VerifiedCommand{
		process:        b.process,
		command:        slices.Clone(b.command),
		inputs:         b.inputs.Build(),
		version:        b.version,
		executableName: b.executableName,
		runnerJarName:  b.runnerJarName,
		cache:          b.cache,
	}, nil
}

func (b *VerifiedBuilder) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(b.outputDir, path)
}

func (b *VerifiedBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// VerifiedCommand is a complete native-image build
type VerifiedCommand struct {
	process

	command        []string
	inputs         fingerprint.Inputs
	version        string
	executableName string
	runnerJarName  string
	cache          ArtifactCache
}

// Version returns the native-image version the command was verified against
func (c *VerifiedCommand) Version() string {
	return c.version
}

// Command returns the full command line
func (c *VerifiedCommand) Command() []string {
	return slices.Clone(c.command)
}

// Inputs returns the fingerprint of the build
func (c *VerifiedCommand) Inputs() fingerprint.Inputs {
	return c.inputs
}

// ExecutableName returns the name of the image in the output directory
func (c *VerifiedCommand) ExecutableName() string {
	return c.executableName
}

// ExecutablePath returns where the image is written
func (c *VerifiedCommand) ExecutablePath() string {
	return filepath.Join(c.outputDir, c.executableName)
}

func (c *VerifiedCommand) String() string {
	return commandLine(c.command)
}

// BuildNativeImage produces the image in the output directory, copying it
// from the cache when an identical build was stored before
func (c *VerifiedCommand) BuildNativeImage(ctx context.Context) error {
	if c.cache != nil {
		used, err := c.cacheUsed()
		if err != nil {
			return err
		}

		if used {
			return nil
		}
	}

	c.logger.Info(c.String())

	cmd := c.execCommand(ctx, c.command[0], c.command[1:]...)
	cmd.Dir = c.outputDir
	cmd.Stdin = os.Stdin
	cmd.Stdout = c.stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return zerr.With(zerr.Wrap(err, "could not execute native-image"), "command", c.String())
	}

	if err := cmd.Start(); err != nil {
		return zerr.With(zerr.Wrap(err, "could not execute native-image"), "command", c.String())
	}

	// The pipe must be fully read before Wait closes it
	var g errgroup.Group
	g.Go(func() error {
		return c.drainErrors(stderr)
	})

	drainErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		return c.buildError(ctx, err)
	}

	if drainErr != nil {
		return zerr.With(drainErr, "command", c.String())
	}

	if c.cache != nil {
		artifact := c.ExecutablePath()
		runnerJar := filepath.Join(c.outputDir, c.runnerJarName)
		if err := c.cache.Store(c.inputs, artifact, runnerJar); err != nil {
			return zerr.Wrap(err, "failed to cache native image")
		}
	}

	return nil
}

// cacheUsed copies a cached image into place. A failed copy falls back to
// a real build.
func (c *VerifiedCommand) cacheUsed() (bool, error) {
	entry, err := c.cache.Retrieve(c.inputs)
	if err != nil {
		return false, zerr.Wrap(err, "failed to read native image cache")
	}

	if entry == nil {
		return false, nil
	}

	target := c.ExecutablePath()
	if err := entry.RestoreArtifact(target); err != nil {
		c.logger.Warn("could not copy cached native image", "from", entry.ArtifactFile(), "to", target, "error", err)
		return false, nil
	}

	c.logger.Info("reusing cached native image instead of rebuilding it", "path", entry.ArtifactFile())

	return true, nil
}

// drainErrors forwards native-image's stderr to the parent and to the
// error report. Failing to write the report does not stop the drain.
func (c *VerifiedCommand) drainErrors(r io.Reader) error {
	w := c.stderr

	report, err := createReport(c.outputDir)
	if err != nil {
		c.logger.Warn("could not create native-image error report", "error", err)
	} else {
		defer report.Close()
		w = io.MultiWriter(c.stderr, report)
	}

	if _, err := io.Copy(w, r); err != nil {
		return zerr.Wrap(err, "failed to read native-image error output")
	}

	return nil
}

func createReport(outputDir string) (*os.File, error) {
	dir := filepath.Join(outputDir, ReportsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create reports directory"), "path", dir)
	}

	path := filepath.Join(dir, ErrorReportFile)

	f, err := os.Create(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create error report"), "path", path)
	}

	return f, nil
}

func (c *VerifiedCommand) buildError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zerr.With(zerr.Wrap(ctxErr, "native image build interrupted"), "command", c.String())
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return zerr.With(zerr.Wrap(err, "could not execute native-image"), "command", c.String())
	}

	code := exitErr.ExitCode()
	wrapped := zerr.Wrap(ErrBuildFailed, fmt.Sprintf("exit code %d (%s)", code, codes.Describe(code)))
	wrapped = zerr.With(wrapped, "exit_code", code)

	return zerr.With(wrapped, "command", c.String())
}

// ShutdownServer stops a native-image build server left running by earlier
// builds. Cancellation is logged and ignored.
func (c *VerifiedCommand) ShutdownServer(ctx context.Context) error {
	args := append(slices.Clone(c.command[1:]), serverShutdownArg)
	cmd := c.execCommand(ctx, c.command[0], args...)
	cmd.Dir = c.outputDir
	cmd.Stdin = os.Stdin
	cmd.Stdout = c.stdout
	cmd.Stderr = c.stderr

	line := commandLine(append(slices.Clone(c.command), serverShutdownArg))

	err := cmd.Start()
	if err == nil {
		err = cmd.Wait()
	}

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		c.logger.Error("interrupted native-image server shutdown", "command", line, "error", ctx.Err())
		return nil
	case cmd.Process == nil:
		return zerr.With(zerr.Wrap(err, "could not execute native-image"), "command", line)
	default:
		c.logger.Warn("native-image server shutdown failed", "command", line, "error", err)
		return nil
	}
}

func commandLine(command []string) string {
	return strings.Join(command, " ")
}
