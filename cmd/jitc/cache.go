package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forgecc/jitc/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the compile cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Show compile cache statistics",
	RunE:         runCacheStats,
	SilenceUsage: true,
}

var cacheClearCmd = &cobra.Command{
	Use:          "clear",
	Short:        "Remove all compile cache entries",
	RunE:         runCacheClear,
	SilenceUsage: true,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openCache(cmd *cobra.Command) (*cache.Cache, error) {
	_ = viper.BindPFlag("cache_dir", cmd.Flags().Lookup("cache-dir"))

	return cache.New(viper.GetString("cache_dir"))
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	c, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	count, size, err := c.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Cache root: %s\n", c.Root())
	fmt.Printf("Entries: %d\n", count)
	fmt.Printf("Total size: %s\n", formatSize(size))

	entries, err := c.Entries()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		fmt.Printf("  %s  %-20s builds=%d  last used %s\n",
			entry.Key[:12], entry.Name, entry.Builds,
			entry.LastUsedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Clear(); err != nil {
		return err
	}

	fmt.Println("Cache cleared")

	return nil
}

func formatSize(size int64) string {
	const unit = 1024

	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
