package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/oriys/storefront/internal/cart"
	"github.com/spf13/cobra"
)

func cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and edit shopping carts",
	}
	cmd.AddCommand(cartSetCmd(), cartShowCmd(), cartClearCmd())
	return cmd
}

func withCarts(cmd *cobra.Command, fn func(ctx context.Context, carts *cart.Store) error) error {
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
	return fn(ctx, cart.New(s, keys))
}

func cartSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <token> <item> <quantity>",
		Short: "Set an item's quantity (0 removes it)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid quantity: %s", args[2])
			}
			return withCarts(cmd, func(ctx context.Context, carts *cart.Store) error {
				return carts.SetItem(ctx, args[0], args[1], qty)
			})
		},
	}
}

func cartShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <token>",
		Short: "List a cart's items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCarts(cmd, func(ctx context.Context, carts *cart.Store) error {
				items, err := carts.Items(ctx, args[0])
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Println("Cart is empty")
					return nil
				}

				names := make([]string, 0, len(items))
				for name := range items {
					names = append(names, name)
				}
				sort.Strings(names)

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ITEM\tQUANTITY")
				for _, name := range names {
					fmt.Fprintf(w, "%s\t%d\n", name, items[name])
				}
				return w.Flush()
			})
		},
	}
}

func cartClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <token>",
		Short: "Empty a cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCarts(cmd, func(ctx context.Context, carts *cart.Store) error {
				return carts.Clear(ctx, args[0])
			})
		},
	}
}
