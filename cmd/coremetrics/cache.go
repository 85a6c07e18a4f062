package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/coremetrics/internal/cache"
	"github.com/panbanda/coremetrics/pkg/config"
)

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the snapshot measurement cache",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show cache statistics",
				Action: runCacheStatsCmd,
			},
			{
				Name:  "clear",
				Usage: "Remove all cached measurements, or those of one commit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "framework",
						Aliases: []string{"f"},
						Usage:   "Framework of --commit",
					},
					&cli.StringSliceFlag{
						Name:  "commit",
						Usage: "Drop only the cached snapshot of this full commit hash (repeatable)",
					},
				},
				Action: runCacheClearCmd,
			},
		},
	}
}

func openCache(cfg *config.Config) (*cache.Cache, string, error) {
	dir := cfg.Paths.Resolve(cfg.Cache.Dir)
	store, err := cache.New(dir, time.Duration(cfg.Cache.TTLHours)*time.Hour, cfg.Cache.Enabled)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open cache %s: %w", dir, err)
	}
	return store, dir, nil
}

func runCacheStatsCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, dir, err := openCache(loaded.Config)
	if err != nil {
		return err
	}
	if !store.Enabled() {
		messages(c).Warning("Cache is disabled (cache.enabled = false)")
		return nil
	}

	stats, err := store.GetStats()
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Directory: %s\n", dir)
	fmt.Fprintf(w, "Entries:   %s\n", humanize.Comma(int64(stats.Entries)))
	fmt.Fprintf(w, "Size:      %s\n", humanize.Bytes(uint64(stats.TotalSize)))
	if stats.Entries > 0 {
		now := time.Now()
		fmt.Fprintf(w, "Oldest:    %s\n", humanize.Time(now.Add(-stats.OldestAge)))
		fmt.Fprintf(w, "Newest:    %s\n", humanize.Time(now.Add(-stats.NewestAge)))
	}
	return nil
}

func runCacheClearCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, dir, err := openCache(loaded.Config)
	if err != nil {
		return err
	}
	if !store.Enabled() {
		messages(c).Warning("Cache is disabled (cache.enabled = false)")
		return nil
	}

	if commits := c.StringSlice("commit"); len(commits) > 0 {
		return invalidateCommits(c, loaded.Config, store, commits)
	}

	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	messages(c).Success("Cleared %s", dir)
	return nil
}

// invalidateCommits drops the snapshot entries of the given commits.
func invalidateCommits(c *cli.Context, cfg *config.Config, store *cache.Cache, commits []string) error {
	id := c.String("framework")
	if id == "" {
		return fmt.Errorf("--commit requires --framework")
	}
	fw, err := cfg.Framework(id)
	if err != nil {
		return err
	}
	for _, commit := range commits {
		if err := store.Invalidate(cache.Key(fw.ID, commit, fw.CoreSubdir)); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", commit, err)
		}
	}
	messages(c).Success("Invalidated %d cached snapshot(s) of %s", len(commits), fw.ID)
	return nil
}
