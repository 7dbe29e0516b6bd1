// Package nativebuild turns a runner jar into a native executable. It decides
// how native-image is invoked, maps the configuration onto native-image
// arguments and moves the result into the output directory.
package nativebuild

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"go.trai.ch/zerr"

	"github.com/Norgate-AV/aotc/internal/cache"
	"github.com/Norgate-AV/aotc/internal/compiler"
	"github.com/Norgate-AV/aotc/internal/config"
	"github.com/Norgate-AV/aotc/internal/logger"
)

const (
	defaultContainerRuntime = "docker"
	debugBuildProcessPort   = "5005"
	libDir                  = "lib"
)

// Step builds native images according to a configuration
type Step struct {
	cfg      *config.Config
	logger   *slog.Logger
	stdout   io.Writer
	stderr   io.Writer
	cache    compiler.ArtifactCache
	metadata compiler.ImageMetadataStore
	getenv   func(string) string
	goos     string

	// Probes of the host toolchain. Tests replace them.
	linuxID     func(ctx context.Context, option string) string
	detectNoPIE func(ctx context.Context) string
}

// Option configures a Step
type Option func(*Step)

// WithLogger sets the logger for progress messages
func WithLogger(log *slog.Logger) Option {
	return func(s *Step) {
		s.logger = logger.OrDiscard(log)
	}
}

// WithStdio sets where native-image output is forwarded
func WithStdio(stdout, stderr io.Writer) Option {
	return func(s *Step) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithCache replaces the cache opened from the configuration
func WithCache(c compiler.ArtifactCache) Option {
	return func(s *Step) {
		s.cache = c
	}
}

// WithMetadataStore remembers builder image versions in store
func WithMetadataStore(store compiler.ImageMetadataStore) Option {
	return func(s *Step) {
		s.metadata = store
	}
}

// WithEnv replaces the environment lookup used to find native-image
func WithEnv(getenv func(string) string) Option {
	return func(s *Step) {
		s.getenv = getenv
	}
}

// New creates a build step for cfg
func New(cfg *config.Config, opts ...Option) *Step {
	s := &Step{
		cfg:         cfg,
		logger:      logger.Discard(),
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		getenv:      os.Getenv,
		goos:        runtime.GOOS,
		linuxID:     linuxID,
		detectNoPIE: detectNoPIE,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Build compiles runnerJar into a native executable and returns the path
// of the executable in the output directory
func (s *Step) Build(ctx context.Context, runnerJar string, props []SystemProperty) (string, error) {
	path, err := s.build(ctx, runnerJar, props)
	if err != nil {
		return "", errors.Join(ErrNativeBuildFailed, err)
	}

	return path, nil
}

func (s *Step) build(ctx context.Context, runnerJar string, props []SystemProperty) (string, error) {
	runnerJar, err := filepath.Abs(runnerJar)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "invalid runner jar path"), "path", runnerJar)
	}

	s.logger.Info("building native image", "from", runnerJar)

	buildDir := filepath.Dir(runnerJar)
	runnerJarName := filepath.Base(runnerJar)

	initial, noPIE, err := s.initialCommand(ctx, buildDir)
	if err != nil {
		return "", err
	}

	builder, err := initial.VerifyVersion(ctx)
	if err != nil {
		return "", err
	}

	flags := s.applySystemProperties(builder, props)
	s.applyArguments(builder, flags, runnerJarName, noPIE)

	executableName := s.executableName(runnerJarName)

	libs, err := libraries(filepath.Join(buildDir, libDir))
	if err != nil {
		return "", err
	}

	for _, lib := range libs {
		builder.Lib(lib)
	}

	builder.ResultingExecutableName(executableName)

	if s.cfg.UseCache {
		c, err := s.artifactCache()
		if err != nil {
			return "", err
		}

		builder.Cache(c)
	}

	command, err := builder.Build()
	if err != nil {
		return "", err
	}

	if s.cfg.CleanupServer {
		if err := command.ShutdownServer(ctx); err != nil {
			return "", err
		}
	}

	if err := command.BuildNativeImage(ctx); err != nil {
		return "", err
	}

	return s.moveToOutput(command.ExecutablePath(), executableName)
}

// initialCommand decides between a container and a local native-image.
// The second result is the linker option disabling PIE, if the host C
// compiler needs one.
func (s *Step) initialCommand(ctx context.Context, buildDir string) (*compiler.InitialCommand, string, error) {
	b := compiler.NewInitialBuilder().
		OutputDir(buildDir).
		Logger(s.logger).
		Stdio(s.stdout, s.stderr).
		MetadataStore(s.metadata)

	noPIE := ""

	if s.cfg.Containerized() {
		runtimeName := s.cfg.ContainerRuntime
		if runtimeName == "" {
			runtimeName = defaultContainerRuntime
		}

		outputPath := buildDir
		if s.goos == "windows" {
			outputPath = translateToVolumePath(outputPath)
		}

		b.ContainerRuntime(runtimeName, outputPath)

		if s.goos == "linux" {
			switch runtimeName {
			case "docker":
				uid := s.linuxID(ctx, "-ur")
				gid := s.linuxID(ctx, "-gr")
				if uid != "" && gid != "" {
					b.UIDGID(uid, gid)
				}
			case "podman":
				b.UserNSKeepID()
			}
		}

		b.Options(s.cfg.ContainerRuntimeOptions)

		if s.cfg.DebugBuildProcess && s.cfg.PublishDebugBuildProcessPort {
			b.Publish(debugBuildProcessPort, debugBuildProcessPort)
		}

		b.RemoveContainerOnExit()
		b.BuilderImage(s.cfg.BuilderImage)
	} else {
		if s.goos == "linux" {
			noPIE = s.detectNoPIE(ctx)
		}

		graalHome := s.cfg.GraalVMHome
		if graalHome == "" {
			graalHome = s.getenv("GRAALVM_HOME")
		}

		javaHome := s.cfg.JavaHome
		if javaHome == "" {
			javaHome = s.getenv("JAVA_HOME")
		}

		executable, err := compiler.LocateExecutable(compiler.SearchPaths{
			Override:    s.cfg.NativeImagePath,
			GraalVMHome: graalHome,
			JavaHome:    javaHome,
			Path:        s.getenv("PATH"),
		})
		if err != nil {
			return nil, "", err
		}

		b.Executable(executable)
	}

	initial, err := b.Build()
	if err != nil {
		return nil, "", err
	}

	return initial, noPIE, nil
}

// applyArguments adds the configured native-image arguments in a fixed
// order, so equal configurations produce equal fingerprints
func (s *Step) applyArguments(b *compiler.VerifiedBuilder, flags featureFlags, runnerJarName, noPIE string) {
	cfg := s.cfg

	for _, arg := range cfg.AdditionalBuildArgs {
		b.Impact(strings.TrimSpace(arg))
	}

	b.Impact("--initialize-at-build-time=")
	// The default policy runs a full collection half of the time
	b.Vanish("-H:InitialCollectionPolicy=com.oracle.svm.core.genscavenge.CollectionPolicy$BySpaceAndTime")
	b.Jar(runnerJarName)

	if cfg.EnableFallbackImages {
		b.Impact("-H:FallbackThreshold=5")
	} else {
		b.Impact("-H:FallbackThreshold=0")
	}

	if cfg.ReportErrorsAtRuntime {
		b.Impact("-H:+ReportUnsupportedElementsAtRuntime")
	}

	if cfg.ReportExceptionStackTraces {
		b.Vanish("-H:+ReportExceptionStackTraces")
	}

	if cfg.DebugSymbols {
		b.Impact("-g")
	}

	if cfg.DebugBuildProcess {
		b.Vanish("-J-Xrunjdwp:transport=dt_socket,address=" + debugBuildProcessPort + ",server=y,suspend=y")
	}

	if cfg.EnableReports {
		b.Vanish("-H:+PrintAnalysisCallTree")
	}

	if cfg.DumpProxies {
		b.Vanish("-Dsun.misc.ProxyGenerator.saveGeneratedFiles=true")
		if cfg.EnableServer {
			s.logger.Warn("dump_proxies and enable_server are both enabled, proxies are dumped in the build server's working directory")
		}
	}

	if cfg.NativeImageXmx != "" {
		b.Vanish("-J-Xmx" + cfg.NativeImageXmx)
	}

	var protocols []string
	if cfg.EnableHTTPURLHandler {
		protocols = append(protocols, "http")
	}

	if flags.httpsURLHandler {
		protocols = append(protocols, "https")
	}

	if flags.allCharsets {
		b.Impact("-H:+AddAllCharsets")
	} else {
		b.Impact("-H:-AddAllCharsets")
	}

	if flags.allTimeZones {
		b.Impact("-H:+IncludeAllTimeZones")
	}

	if len(protocols) > 0 {
		b.Impact("-H:EnableURLProtocols=" + strings.Join(protocols, ","))
	}

	if flags.allSecurityServices {
		b.Impact("--enable-all-security-services")
	}

	if noPIE != "" {
		b.Impact("-H:NativeLinkerOption=" + noPIE)
	}

	if !cfg.EnableIsolates {
		b.Impact("-H:-SpawnIsolates")
	}

	if !cfg.EnableServer && s.goos != "windows" {
		b.Vanish("--no-server")
	}

	if cfg.EnableVMInspection {
		b.Impact("-H:+AllowVMInspection")
	}

	if cfg.AutoServiceLoaderRegistration {
		b.Impact("-H:+UseServiceLoaderFeature")
		b.Vanish("-H:+TraceServiceLoaderFeature")
	} else {
		b.Impact("-H:-UseServiceLoaderFeature")
	}

	if cfg.FullStackTraces {
		b.Impact("-H:+StackTrace")
	} else {
		b.Impact("-H:-StackTrace")
	}
}

// executableName derives the image name from the runner jar, so that
// app-runner.jar becomes app-runner with the default suffix
func (s *Step) executableName(runnerJarName string) string {
	base := strings.TrimSuffix(runnerJarName, ".jar")
	base = strings.TrimSuffix(base, config.DefaultRunnerSuffix)
	if s.cfg.RunnerSuffix != config.DefaultRunnerSuffix {
		base = strings.TrimSuffix(base, s.cfg.RunnerSuffix)
	}

	return base + s.cfg.RunnerSuffix
}

func (s *Step) artifactCache() (compiler.ArtifactCache, error) {
	if s.cache != nil {
		return s.cache, nil
	}

	if s.cfg.CacheDir == "" {
		return cache.Default(cache.WithLogger(s.logger))
	}

	return cache.New(s.cfg.CacheDir, cache.WithLogger(s.logger))
}

// moveToOutput moves the generated image into the configured output directory
func (s *Step) moveToOutput(generated, executableName string) (string, error) {
	if s.cfg.OutputDir == "" || filepath.Clean(s.cfg.OutputDir) == filepath.Dir(generated) {
		return generated, nil
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to create output directory"), "path", s.cfg.OutputDir)
	}

	final := filepath.Join(s.cfg.OutputDir, executableName)
	if err := moveFile(generated, final); err != nil {
		return "", err
	}

	s.logger.Debug("moved native image", "from", generated, "to", final)

	return final, nil
}

// libraries lists the regular files of dir. A missing directory has none.
func libraries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, zerr.With(zerr.Wrap(err, "failed to list libraries"), "path", dir)
	}

	var libs []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			libs = append(libs, filepath.Join(dir, entry.Name()))
		}
	}

	return libs, nil
}

var driveLetterPath = regexp.MustCompile(`^(\w)(?:$|:(/)?(.*))`)

// translateToVolumePath converts C:\Users\me to //c/Users/me, the form
// docker on Windows accepts in volume mounts
func translateToVolumePath(path string) string {
	translated := strings.ReplaceAll(path, `\`, "/")

	m := driveLetterPath.FindStringSubmatch(translated)
	if m == nil {
		return translated
	}

	slash := m[2]
	if slash == "" {
		slash = "/"
	}

	return "//" + strings.ToLower(m[1]) + slash + m[3]
}

// linuxID runs `id option`, returning "" when id cannot be run
func linuxID(ctx context.Context, option string) string {
	out, err := exec.CommandContext(ctx, "id", option).Output()
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(out))
}

// detectNoPIE returns the option the host C compiler accepts to disable
// position independent executables, or "" if it takes neither
func detectNoPIE(ctx context.Context) string {
	for _, arg := range []string{"-no-pie", "-nopie"} {
		if ccAccepts(ctx, arg) {
			return arg
		}
	}

	return ""
}

func ccAccepts(ctx context.Context, arg string) bool {
	cmd := exec.CommandContext(ctx, "cc", "-v", "-E", arg, "-")
	cmd.Stdin = strings.NewReader("")
	return cmd.Run() == nil
}
