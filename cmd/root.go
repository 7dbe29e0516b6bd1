package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"github.com/Norgate-AV/aotc/internal/logger"
	"github.com/Norgate-AV/aotc/internal/version"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "aotc [runner.jar]",
		Short:         "Ahead-of-time native image compiler",
		Long:          `Build native executables from runner jars with GraalVM native-image, reusing cached images of identical builds.`,
		RunE:          runBuild,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)

	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "Verbose output")
	flags.String("cache-dir", "", "Native image cache directory")
	flags.String("image-metadata-dir", "", "Builder image metadata directory")
	flags.String("container-runtime", "", "Build inside a container with this runtime (docker, podman)")
	flags.Bool("container-build", false, "Build inside a container")
	flags.String("builder-image", "", "Image providing native-image for container builds")
	flags.String("native-image-path", "", "Path to the native-image executable")
	flags.String("graalvm-home", "", "GraalVM installation to take native-image from")
	flags.StringP("output-dir", "o", "", "Directory receiving the native executable")
	flags.String("runner-suffix", "", "Suffix of the native executable name")
	flags.Bool("use-cache", true, "Reuse and store images in the native image cache")
	flags.Bool("cleanup-server", false, "Shut down the native-image build server before building")
	flags.String("native-image-xmx", "", "Maximum heap of the native-image JVM")
	flags.Bool("debug-symbols", false, "Include debug symbols in the image")
	flags.Bool("enable-reports", false, "Write native-image analysis reports")
	flags.StringSlice("additional-arg", nil, "Additional native-image argument")
	flags.StringArrayP("define", "D", nil, "Build-time system property, key[=value]")

	rootCmd.AddCommand(newBuildCmd(), newCacheCmd(), newVersionCmd())

	return rootCmd
}

// Execute runs the CLI and exits with a non-zero status on failure
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		zerr.Log(ctx, logger.New(false), err)
		os.Exit(1)
	}
}
