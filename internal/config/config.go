package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.trai.ch/zerr"
)

// Default configuration values
const (
	DefaultBuilderImage     = "quay.io/quarkus/ubi-quarkus-native-image:20.1.0-java11"
	DefaultRunnerSuffix     = "-runner"
	DefaultCacheDir         = ".aotc/native-image-cache"
	DefaultImageMetadataDir = ".aotc/builder-image-metadata"
	DefaultVerbose          = false

	// BuilderImageEnv overrides the builder image regardless of other sources
	BuilderImageEnv = "AOTC_BUILDER_IMAGE"
)

// Config holds the options of a native image build
type Config struct {
	// Container runtime running the builder image (docker, podman)
	ContainerRuntime string
	// Build in a container even when no runtime is named
	ContainerBuild bool
	// Image providing native-image for container builds
	BuilderImage string
	// Extra raw options passed to the container runtime
	ContainerRuntimeOptions []string

	// Explicit native-image executable
	NativeImagePath string
	GraalVMHome     string
	JavaHome        string

	AdditionalBuildArgs []string
	// Build-time system properties. Keys keep their case.
	SystemProperties map[string]string

	EnableHTTPURLHandler          bool
	EnableHTTPSURLHandler         bool
	EnableAllSecurityServices     bool
	AddAllCharsets                bool
	EnableIsolates                bool
	EnableFallbackImages          bool
	ReportErrorsAtRuntime         bool
	ReportExceptionStackTraces    bool
	DebugSymbols                  bool
	DebugBuildProcess             bool
	PublishDebugBuildProcessPort  bool
	EnableReports                 bool
	DumpProxies                   bool
	EnableServer                  bool
	EnableVMInspection            bool
	AutoServiceLoaderRegistration bool
	FullStackTraces               bool
	CleanupServer                 bool
	UseCache                      bool

	// Heap of the JVM running native-image, e.g. 4g
	NativeImageXmx string

	// Roots of the artifact cache and the builder image metadata store
	CacheDir         string
	ImageMetadataDir string

	// Directory receiving the final executable. Defaults to the runner jar's directory.
	OutputDir    string
	RunnerSuffix string

	// Enable verbose output
	Verbose bool
}

// Load builds a Config from the current viper state
func Load() (*Config, error) {
	cfg := &Config{
		ContainerRuntime:              viper.GetString("container_runtime"),
		ContainerBuild:                viper.GetBool("container_build"),
		BuilderImage:                  viper.GetString("builder_image"),
		ContainerRuntimeOptions:       viper.GetStringSlice("container_runtime_options"),
		NativeImagePath:               viper.GetString("native_image_path"),
		GraalVMHome:                   viper.GetString("graalvm_home"),
		JavaHome:                      viper.GetString("java_home"),
		AdditionalBuildArgs:           viper.GetStringSlice("additional_build_args"),
		SystemProperties:              parseSystemProperties(viper.GetStringSlice("system_properties")),
		EnableHTTPURLHandler:          viper.GetBool("enable_http_url_handler"),
		EnableHTTPSURLHandler:         viper.GetBool("enable_https_url_handler"),
		EnableAllSecurityServices:     viper.GetBool("enable_all_security_services"),
		AddAllCharsets:                viper.GetBool("add_all_charsets"),
		EnableIsolates:                viper.GetBool("enable_isolates"),
		EnableFallbackImages:          viper.GetBool("enable_fallback_images"),
		ReportErrorsAtRuntime:         viper.GetBool("report_errors_at_runtime"),
		ReportExceptionStackTraces:    viper.GetBool("report_exception_stack_traces"),
		DebugSymbols:                  viper.GetBool("debug_symbols"),
		DebugBuildProcess:             viper.GetBool("debug_build_process"),
		PublishDebugBuildProcessPort:  viper.GetBool("publish_debug_build_process_port"),
		EnableReports:                 viper.GetBool("enable_reports"),
		DumpProxies:                   viper.GetBool("dump_proxies"),
		EnableServer:                  viper.GetBool("enable_server"),
		EnableVMInspection:            viper.GetBool("enable_vm_inspection"),
		AutoServiceLoaderRegistration: viper.GetBool("auto_service_loader_registration"),
		FullStackTraces:               viper.GetBool("full_stack_traces"),
		CleanupServer:                 viper.GetBool("cleanup_server"),
		UseCache:                      viper.GetBool("use_cache"),
		NativeImageXmx:                viper.GetString("native_image_xmx"),
		CacheDir:                      viper.GetString("cache_dir"),
		ImageMetadataDir:              viper.GetString("image_metadata_dir"),
		OutputDir:                     viper.GetString("output_dir"),
		RunnerSuffix:                  viper.GetString("runner_suffix"),
		Verbose:                       viper.GetBool("verbose"),
	}

	if image := os.Getenv(BuilderImageEnv); image != "" {
		cfg.BuilderImage = image
	}

	// Apply defaults if not set
	if cfg.BuilderImage == "" {
		cfg.BuilderImage = DefaultBuilderImage
	}

	if cfg.RunnerSuffix == "" {
		cfg.RunnerSuffix = DefaultRunnerSuffix
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseSystemProperties splits key[=value] entries. They are read as a list
// because viper lowercases map keys and property names are case-sensitive.
func parseSystemProperties(entries []string) map[string]string {
	if len(entries) == 0 {
		return nil
	}

	props := make(map[string]string, len(entries))
	for _, e := range entries {
		key, value, _ := strings.Cut(e, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		props[key] = value
	}

	return props
}

// Containerized reports whether the build runs inside a builder image
func (c *Config) Containerized() bool {
	return c.ContainerBuild || c.ContainerRuntime != ""
}

// Validate resolves every configured path to an absolute one
func (c *Config) Validate() error {
	switch c.ContainerRuntime {
	case "", "docker", "podman":
	default:
		return zerr.With(zerr.New("unsupported container runtime"), "runtime", c.ContainerRuntime)
	}

	for _, p := range []*string{&c.NativeImagePath, &c.GraalVMHome, &c.JavaHome, &c.OutputDir} {
		if err := absolute(p); err != nil {
			return err
		}
	}

	for _, p := range []*string{&c.CacheDir, &c.ImageMetadataDir} {
		if err := expandHome(p); err != nil {
			return err
		}

		if err := absolute(p); err != nil {
			return err
		}
	}

	return nil
}

func absolute(p *string) error {
	if *p == "" {
		return nil
	}

	abs, err := filepath.Abs(*p)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "invalid path"), "path", *p)
	}

	*p = abs
	return nil
}

func expandHome(p *string) error {
	if *p != "~" && !strings.HasPrefix(*p, "~/") {
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return zerr.Wrap(err, "could not determine home directory")
	}

	*p = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(*p, "~"), "/"))
	return nil
}
