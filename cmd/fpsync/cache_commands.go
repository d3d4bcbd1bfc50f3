package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fpsync/internal/engine"
	"fpsync/internal/historycache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the history cache",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show history cache entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openPersistentCache(ctx)
			if err != nil {
				return err
			}
			defer cache.Close()

			stats, err := cache.Stats()
			if err != nil {
				return err
			}
			if ctx.jsonOutput(cmd) {
				return writeJSON(cmd, stats)
			}
			rows := [][]string{
				{"Directory", stats.Dir},
				{"Blobs", strconv.Itoa(stats.Blobs)},
				{"Trees", strconv.Itoa(stats.Trees)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable("History cache", []string{"Field", "Value"}, rows))
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every history cache entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openPersistentCache(ctx)
			if err != nil {
				return err
			}
			defer cache.Close()

			if err := cache.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cache cleared")
			return nil
		},
	}
}

func openPersistentCache(ctx *commandContext) (*historycache.Cache, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.History.CacheDir == "" {
		return nil, fmt.Errorf("history.cache_dir is not set; the cache only lives for one run")
	}
	logger, err := ctx.logger()
	if err != nil {
		return nil, err
	}
	return engine.OpenHistoryCache(cfg, logger)
}
