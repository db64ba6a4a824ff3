package main

import (
	"context"
	"fmt"
	"os"

	"github.com/oriys/storefront/internal/config"
	"github.com/oriys/storefront/internal/keyspace"
	"github.com/oriys/storefront/internal/kv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	redisAddr  string
	redisPass  string
	redisDB    int
	keyPrefix  string
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "storefront",
		Short:   "Storefront - Redis-backed sessions, carts and page caching",
		Long:    "Manages login sessions, shopping carts, a popularity-gated page cache and scheduled row caching on Redis",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "Redis address")
	rootCmd.PersistentFlags().StringVar(&redisPass, "redis-pass", "", "Redis password")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", 0, "Redis database")
	rootCmd.PersistentFlags().StringVar(&keyPrefix, "prefix", "", "Key namespace prefix")

	rootCmd.AddCommand(
		daemonCmd(),
		tokenCmd(),
		cartCmd(),
		scheduleCmd(),
		inventoryCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers the config file, environment and explicit flags, in
// that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(configPath); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	flags := cmd.Flags()
	if flags.Changed("redis") {
		cfg.Redis.Addr = redisAddr
	}
	if flags.Changed("redis-pass") {
		cfg.Redis.Password = redisPass
	}
	if flags.Changed("redis-db") {
		cfg.Redis.DB = redisDB
	}
	if flags.Changed("prefix") {
		cfg.Redis.KeyPrefix = keyPrefix
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getStore(ctx context.Context, cfg *config.Config) (*kv.RedisStore, keyspace.Keys, error) {
	s, err := kv.NewRedisStore(ctx, kv.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, keyspace.Keys{}, err
	}
	return s, keyspace.New(cfg.Redis.KeyPrefix), nil
}
