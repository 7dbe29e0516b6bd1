package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"github.com/Norgate-AV/aotc/internal/cache"
	"github.com/Norgate-AV/aotc/internal/config"
	"github.com/Norgate-AV/aotc/internal/logger"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the native image cache",
		Args:  cobra.NoArgs,
	}

	cacheCmd.AddCommand(
		&cobra.Command{
			Use:          "gc",
			Short:        "Evict least recently used images if a collection is due",
			Args:         cobra.NoArgs,
			SilenceUsage: true,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := openCache(cmd)
				if err != nil {
					return err
				}

				return c.GCIfNecessary()
			},
		},
		&cobra.Command{
			Use:          "stats",
			Short:        "Show the number and total size of cached images",
			Args:         cobra.NoArgs,
			SilenceUsage: true,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := openCache(cmd)
				if err != nil {
					return err
				}

				count, size, err := c.Stats()
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Cache: %s\nEntries: %d\nSize: %s (limit %s)\n",
					c.Root(), count, formatBytes(size), formatBytes(c.Prefs().Capacity))
				return err
			},
		},
		&cobra.Command{
			Use:          "clear",
			Short:        "Remove every cached image",
			Args:         cobra.NoArgs,
			SilenceUsage: true,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := openCache(cmd)
				if err != nil {
					return err
				}

				if err := c.Clear(); err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
				return err
			},
		},
	)

	return cacheCmd
}

func openCache(cmd *cobra.Command) (*cache.Cache, error) {
	cfg, err := config.NewLoader().LoadForCache(cmd)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}

	log := logger.New(cfg.Verbose)

	if cfg.CacheDir == "" {
		return cache.Default(cache.WithLogger(log))
	}

	return cache.New(cfg.CacheDir, cache.WithLogger(log))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
