package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables overriding configuration keys
const EnvPrefix = "AOTC"

// flagKeys maps command flags to configuration keys
var flagKeys = map[string]string{
	"container-runtime":  "container_runtime",
	"container-build":    "container_build",
	"builder-image":      "builder_image",
	"native-image-path":  "native_image_path",
	"graalvm-home":       "graalvm_home",
	"output-dir":         "output_dir",
	"runner-suffix":      "runner_suffix",
	"cache-dir":          "cache_dir",
	"use-cache":          "use_cache",
	"cleanup-server":     "cleanup_server",
	"native-image-xmx":   "native_image_xmx",
	"additional-arg":     "additional_build_args",
	"debug-symbols":      "debug_symbols",
	"enable-reports":     "enable_reports",
	"verbose":            "verbose",
	"image-metadata-dir": "image_metadata_dir",
}

// Loader handles configuration loading from various sources
type Loader struct {
	// configDir returns the user configuration directory. Tests replace it.
	configDir func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{configDir: os.UserConfigDir}
}

// LoadForBuild loads configuration for building the runner jar named by args[0]
func (l *Loader) LoadForBuild(cmd *cobra.Command, args []string) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfig(args)
	l.bindCommandFlags(cmd)
	l.bindEnv()

	return Load()
}

// LoadForCache loads configuration for cache maintenance commands
func (l *Loader) LoadForCache(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.bindCommandFlags(cmd)
	l.bindEnv()

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("builder_image", DefaultBuilderImage)
	viper.SetDefault("runner_suffix", DefaultRunnerSuffix)
	viper.SetDefault("cache_dir", "~/"+DefaultCacheDir)
	viper.SetDefault("image_metadata_dir", "~/"+DefaultImageMetadataDir)
	viper.SetDefault("enable_http_url_handler", true)
	viper.SetDefault("auto_service_loader_registration", false)
	viper.SetDefault("full_stack_traces", true)
	viper.SetDefault("enable_isolates", true)
	viper.SetDefault("enable_fallback_images", false)
	viper.SetDefault("enable_server", false)
	viper.SetDefault("cleanup_server", false)
	viper.SetDefault("use_cache", true)
	viper.SetDefault("verbose", DefaultVerbose)
}

// loadGlobalConfig loads global configuration from the user config directory
func (l *Loader) loadGlobalConfig() {
	base, err := l.configDir()
	if err != nil || base == "" {
		return
	}

	if globalPath := configFileIn(filepath.Join(base, "aotc"), "config"); globalPath != "" {
		viper.SetConfigFile(globalPath)
		_ = viper.MergeInConfig()
	}
}

// loadLocalConfig loads local configuration found next to or above the runner jar
func (l *Loader) loadLocalConfig(args []string) {
	if len(args) == 0 {
		return
	}

	absJar, err := filepath.Abs(args[0])
	if err != nil {
		return // Load reports unusable paths
	}

	localPath := FindLocalConfig(absJar)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.MergeInConfig()
	}
}

// bindCommandFlags binds the flags cmd defines to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// bindEnv lets AOTC_<KEY> override any key
func (l *Loader) bindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}
