package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oriys/storefront/internal/inventory"
	"github.com/spf13/cobra"
)

func inventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Manage the Postgres inventory source",
	}
	cmd.AddCommand(inventoryPutCmd())
	return cmd
}

func inventoryPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <row> <json-object>",
		Short: "Insert or replace a row's data",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseRowData(args[1])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" {
				return fmt.Errorf("postgres.dsn is not configured")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			pg, err := inventory.NewPostgresSource(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := pg.Put(ctx, args[0], data); err != nil {
				return err
			}
			fmt.Printf("Stored %s\n", args[0])
			return nil
		},
	}
}

func parseRowData(raw string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("row data must be a JSON object: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("row data must be a JSON object")
	}
	return data, nil
}
