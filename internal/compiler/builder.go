// Package compiler assembles and runs native-image commands.
//
// A command goes through two phases. An InitialCommand knows how to invoke
// native-image, either locally or inside a builder image, but not which
// version it will get. VerifyVersion probes the version, rejects obsolete
// releases and promotes the command to a VerifiedBuilder, which accumulates
// build arguments. Arguments that change the produced image are recorded in
// the build fingerprint as well as on the command line; the rest only go on
// the command line.
package compiler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"slices"

	"go.trai.ch/zerr"

	"github.com/Norgate-AV/aotc/internal/fingerprint"
	"github.com/Norgate-AV/aotc/internal/imagemeta"
	"github.com/Norgate-AV/aotc/internal/logger"
)

const (
	osTypeKey = "native.os.type"
	osArchKey = "native.os.arch"

	// containerOutputDir is where the output directory is mounted in the builder image
	containerOutputDir = "/project"
)

// execFunc creates the process for a command. Tests replace it.
type execFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// process holds what both command phases need to spawn native-image
type process struct {
	outputDir        string
	containerRuntime string
	builderImage     string
	metadata         ImageMetadataStore
	logger           *slog.Logger
	stdout           io.Writer
	stderr           io.Writer
	execCommand      execFunc
}

func (p *process) containerized() bool {
	return p.containerRuntime != ""
}

// InitialBuilder collects how native-image is invoked
type InitialBuilder struct {
	process

	command []string
	inputs  *fingerprint.Builder
}

// NewInitialBuilder creates a builder writing to the parent's stdout and stderr
func NewInitialBuilder() *InitialBuilder {
	return &InitialBuilder{
		process: process{
			logger:      logger.Discard(),
			stdout:      os.Stdout,
			stderr:      os.Stderr,
			execCommand: exec.CommandContext,
		},
		inputs: fingerprint.NewBuilder(),
	}
}

// ContainerRuntime runs native-image through runtime with outputPath mounted
// as the working directory. Container builds always target linux/amd64.
func (b *InitialBuilder) ContainerRuntime(runtime, outputPath string) *InitialBuilder {
	b.containerRuntime = runtime
	b.command = append(b.command, runtime, "run", "-v", outputPath+":"+containerOutputDir+":z")
	b.inputs.Entry(osTypeKey, "linux")
	b.inputs.Entry(osArchKey, "amd64")
	return b
}

// UIDGID runs the container as the given user and group
func (b *InitialBuilder) UIDGID(uid, gid string) *InitialBuilder {
	b.command = append(b.command, "--user", uid+":"+gid)
	return b
}

// UserNSKeepID maps the invoking user into rootless podman containers
func (b *InitialBuilder) UserNSKeepID() *InitialBuilder {
	b.command = append(b.command, "--userns=keep-id")
	return b
}

// Options appends raw container runtime options. They are not part of the
// fingerprint and must not change the produced image.
func (b *InitialBuilder) Options(options []string) *InitialBuilder {
	b.command = append(b.command, options...)
	return b
}

// Publish exposes a container port on the host
func (b *InitialBuilder) Publish(containerPort, hostPort string) *InitialBuilder {
	b.command = append(b.command, "--publish="+containerPort+":"+hostPort)
	return b
}

// RemoveContainerOnExit deletes the container once native-image exits
func (b *InitialBuilder) RemoveContainerOnExit() *InitialBuilder {
	b.command = append(b.command, "--rm")
	return b
}

// BuilderImage sets the image providing native-image. It must come after
// every runtime option.
func (b *InitialBuilder) BuilderImage(image string) *InitialBuilder {
	b.builderImage = image
	b.command = append(b.command, image)
	return b
}

// Executable runs a local native-image and records the host platform
func (b *InitialBuilder) Executable(path string) *InitialBuilder {
	b.command = append(b.command, path)
	b.inputs.Entry(osTypeKey, runtime.GOOS)
	b.inputs.Entry(osArchKey, runtime.GOARCH)
	return b
}

// OutputDir sets the directory native-image runs in and writes to
func (b *InitialBuilder) OutputDir(dir string) *InitialBuilder {
	b.outputDir = dir
	return b
}

// MetadataStore remembers builder image versions. Without one every
// containerized build probes the image.
func (b *InitialBuilder) MetadataStore(store ImageMetadataStore) *InitialBuilder {
	b.metadata = store
	return b
}

// Logger sets the logger for progress messages
func (b *InitialBuilder) Logger(log *slog.Logger) *InitialBuilder {
	b.logger = logger.OrDiscard(log)
	return b
}

// Stdio sets where native-image output is forwarded
func (b *InitialBuilder) Stdio(stdout, stderr io.Writer) *InitialBuilder {
	b.stdout = stdout
	b.stderr = stderr
	return b
}

// Build returns the configured command
func (b *InitialBuilder) Build() (*InitialCommand, error) {
	if len(b.command) == 0 {
		return nil, zerr.Wrap(ErrInvalidCommand, "no executable or container runtime configured")
	}

	if b.outputDir == "" {
		return nil, zerr.Wrap(ErrInvalidCommand, "no output directory configured")
	}

	if b.containerized() && b.builderImage == "" {
		return nil, zerr.With(zerr.Wrap(ErrInvalidCommand, "no builder image configured"), "runtime", b.containerRuntime)
	}

	return &InitialCommand{
		process: b.process,
		command: slices.Clone(b.command),
		inputs:  b.inputs.Build(),
	}, nil
}

// InitialCommand is a native-image invocation whose version is not yet known
type InitialCommand struct {
	process

	command []string
	inputs  fingerprint.Inputs
}

// Command returns the base command line
func (c *InitialCommand) Command() []string {
	return slices.Clone(c.command)
}

// Inputs returns the fingerprint entries recorded so far
func (c *InitialCommand) Inputs() fingerprint.Inputs {
	return c.inputs
}

// Containerized reports whether native-image runs in a builder image
func (c *InitialCommand) Containerized() bool {
	return c.containerized()
}

// PullImage pulls the builder image so its download shows up as progress
// instead of a silent version probe. It does nothing for local builds.
func (c *InitialCommand) PullImage(ctx context.Context) error {
	if !c.containerized() {
		return nil
	}

	c.logger.Info("pulling builder image", "image", c.builderImage)

	cmd := c.execCommand(ctx, c.containerRuntime, "pull", c.builderImage)
	cmd.Stdout = c.stdout
	cmd.Stderr = c.stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			// The version probe reports a missing image
			c.logger.Warn("failed to pull builder image", "image", c.builderImage, "exit_code", exitErr.ExitCode())
			return nil
		}

		return zerr.With(zerr.Wrap(err, "failed to pull builder image"), "image", c.builderImage)
	}

	return nil
}

// VerifyVersion determines the native-image version and returns a builder
// for the build arguments. Builder image versions come from the metadata
// store when known, and are recorded there after a probe.
func (c *InitialCommand) VerifyVersion(ctx context.Context) (*VerifiedBuilder, error) {
	version, known := "", false
	if c.containerized() && c.metadata != nil {
		if md, ok := c.metadata.Retrieve(c.builderImage); ok {
			version, known = md.NativeImageVersion, true
		}
	}

	if !known {
		if err := c.PullImage(ctx); err != nil {
			return nil, err
		}

		probed, err := c.probeVersion(ctx)
		if err != nil {
			return nil, err
		}

		version = probed
		if c.containerized() && c.metadata != nil {
			c.metadata.Store(c.builderImage, imagemeta.Metadata{NativeImageVersion: version})
		}
	}

	c.logger.Info("running native-image", "version", version)

	if err := CheckVersion(version); err != nil {
		return nil, err
	}

	return newVerifiedBuilder(c, version), nil
}

func (c *InitialCommand) probeVersion(ctx context.Context) (string, error) {
	args := append(slices.Clone(c.command[1:]), "--version")
	cmd := c.execCommand(ctx, c.command[0], args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return "", zerr.With(zerr.Wrap(err, "failed to get GraalVM version"), "command", commandLine(c.command))
		}
	}

	version, ok := ParseVersion(output)
	if !ok {
		return "", zerr.With(zerr.Wrap(ErrUnknownVersion, "version probe failed"), "command", commandLine(c.command))
	}

	return version, nil
}
