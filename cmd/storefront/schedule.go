package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/oriys/storefront/internal/inventory"
	"github.com/oriys/storefront/internal/rowcache"
	"github.com/spf13/cobra"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled row caching",
	}
	cmd.AddCommand(scheduleSetCmd(), scheduleRemoveCmd(), scheduleGetCmd())
	return cmd
}

func withRefresher(cmd *cobra.Command, fn func(ctx context.Context, rows *rowcache.Refresher) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	s, keys, err := getStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	// The source is only used by the daemon's refresh loop.
	rows, err := rowcache.NewRefresher(s, keys, inventory.StaticSource{}, rowcache.Config{
		PollInterval: cfg.Rows.PollInterval,
	})
	if err != nil {
		return err
	}
	return fn(ctx, rows)
}

func scheduleSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <row> <interval>",
		Short: "Cache a row and refresh it every interval (e.g. 5s); 0 retires it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delay, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("invalid interval: %w", err)
			}
			return withRefresher(cmd, func(ctx context.Context, rows *rowcache.Refresher) error {
				if err := rows.Schedule(ctx, args[0], delay); err != nil {
					return err
				}
				fmt.Printf("Scheduled %s every %s\n", args[0], delay)
				return nil
			})
		},
	}
}

func scheduleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <row>",
		Short: "Stop caching a row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRefresher(cmd, func(ctx context.Context, rows *rowcache.Refresher) error {
				return rows.Unschedule(ctx, args[0])
			})
		},
	}
}

func scheduleGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <row>",
		Short: "Print a row's cached JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRefresher(cmd, func(ctx context.Context, rows *rowcache.Refresher) error {
				row, err := rows.Get(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(row)
			})
		},
	}
}
