package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gazette-cli/internal/model"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the extracted text cache",
}

// -- cache stats --

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and entry count",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		formatCacheStats(os.Stdout, c.Dir(), c.Stats(cmd.Context()))
		return nil
	},
}

// -- cache list --

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached documents, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		recs, err := c.List(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "cache list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "Cache is empty.")
			return nil
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}
		formatCacheRecords(os.Stdout, recs)
		return nil
	},
}

// -- cache invalidate --

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <pdf>...",
	Short: "Drop the cached text of specific PDFs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		removed := 0
		for _, path := range args {
			doc, err := model.NewSourceDocument(path)
			if err != nil {
				return err
			}
			if c.Invalidate(cmd.Context(), doc) {
				removed++
			} else {
				fmt.Fprintf(os.Stderr, "not cached: %s\n", path)
			}
		}
		fmt.Fprintf(os.Stdout, "Invalidated %d of %d documents.\n", removed, len(args))
		return nil
	},
}

// -- cache prune --

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove entries older than a given age",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		age, _ := cmd.Flags().GetDuration("older-than")
		if age <= 0 {
			age = time.Duration(cfg.Cache.MaxAgeDays) * 24 * time.Hour
		}
		if age <= 0 {
			return eris.New("cache prune: --older-than or cache.max_age_days is required")
		}

		n := c.InvalidateOlderThan(cmd.Context(), age)
		fmt.Fprintf(os.Stdout, "Removed %d entries older than %s.\n", n, age)
		return nil
	},
}

// -- cache clear --

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cache entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return eris.New("cache clear: pass --yes to remove every entry")
		}

		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		n, err := c.Clear(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "cache clear")
		}
		fmt.Fprintf(os.Stdout, "Removed %d entries.\n", n)
		return nil
	},
}

func init() {
	cacheListCmd.Flags().Int("limit", 50, "max entries to display (0 for all)")
	cachePruneCmd.Flags().Duration("older-than", 0, "age threshold, e.g. 720h (default cache.max_age_days)")
	cacheClearCmd.Flags().Bool("yes", false, "confirm removal of every entry")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
