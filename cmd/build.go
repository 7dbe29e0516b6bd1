package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"github.com/Norgate-AV/aotc/internal/config"
	"github.com/Norgate-AV/aotc/internal/imagemeta"
	"github.com/Norgate-AV/aotc/internal/logger"
	"github.com/Norgate-AV/aotc/internal/nativebuild"
)

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "build <runner.jar>",
		Short:        "Build a native executable",
		Long:         `Compile a runner jar and the libraries next to it into a native executable and print its path.`,
		RunE:         runBuild,
		SilenceUsage: true,
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	jar, err := validateRunnerJar(args)
	if err != nil {
		return err
	}

	cfg, err := config.NewLoader().LoadForBuild(cmd, []string{jar})
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	defines, err := cmd.Flags().GetStringArray("define")
	if err != nil {
		return err
	}

	log := logger.New(cfg.Verbose)
	log.Debug("configuration loaded", "runner_jar", jar, "containerized", cfg.Containerized(), "use_cache", cfg.UseCache)

	step := nativebuild.New(cfg,
		nativebuild.WithLogger(log),
		nativebuild.WithStdio(os.Stdout, os.Stderr),
		nativebuild.WithMetadataStore(imagemeta.New(cfg.ImageMetadataDir, log)),
	)

	path, err := step.Build(cmd.Context(), jar, systemProperties(cfg.SystemProperties, defines))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
	return err
}

// validateRunnerJar checks that args names exactly one existing jar and
// returns its absolute path
func validateRunnerJar(args []string) (string, error) {
	if len(args) != 1 {
		return "", zerr.New("requires exactly one runner jar argument")
	}

	if !strings.HasSuffix(args[0], ".jar") {
		return "", zerr.With(zerr.New("runner must be a .jar file"), "path", args[0])
	}

	abs, err := filepath.Abs(args[0])
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to resolve absolute path"), "path", args[0])
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "runner jar not found"), "path", abs)
	}

	if info.IsDir() {
		return "", zerr.With(zerr.New("runner jar is a directory"), "path", abs)
	}

	return abs, nil
}

// systemProperties merges configured properties with -D definitions, the
// latter winning
func systemProperties(configured map[string]string, defines []string) []nativebuild.SystemProperty {
	merged := make(map[string]string, len(configured)+len(defines))
	for k, v := range configured {
		merged[k] = v
	}

	for _, d := range defines {
		p := nativebuild.ParseSystemProperty(d)
		if p.Key == "" {
			continue
		}

		merged[p.Key] = p.Value
	}

	return nativebuild.PropertiesFromMap(merged)
}
