package main

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/storefront/internal/popularity"
	"github.com/oriys/storefront/internal/session"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage session tokens",
	}
	cmd.AddCommand(tokenNewCmd(), tokenCheckCmd(), tokenLogoutCmd(), tokenCountCmd())
	return cmd
}

func withRegistry(cmd *cobra.Command, fn func(ctx context.Context, reg *session.Registry, ranker *popularity.Ranker) error) error {
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

	ranker, err := popularity.NewRanker(s, keys, cfg.Popularity.HistorySize)
	if err != nil {
		return err
	}
	return fn(ctx, session.NewRegistry(s, keys, ranker), ranker)
}

func tokenNewCmd() *cobra.Command {
	var item string

	cmd := &cobra.Command{
		Use:   "new <user>",
		Short: "Create a session token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(ctx context.Context, reg *session.Registry, _ *popularity.Ranker) error {
				token := session.NewToken()
				if err := reg.Touch(ctx, token, args[0], item); err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&item, "item", "", "Record a view of this item")
	return cmd
}

func tokenCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <token>",
		Short: "Show the user and view history of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(ctx context.Context, reg *session.Registry, ranker *popularity.Ranker) error {
				user, ok, err := reg.Validate(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("token not found: %s", args[0])
				}
				history, err := ranker.History(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("User:    %s\n", user)
				fmt.Printf("Viewed:  %v\n", history)
				return nil
			})
		},
	}
}

func tokenLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <token>",
		Short: "Remove a session and its history and cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(ctx context.Context, reg *session.Registry, _ *popularity.Ranker) error {
				if err := reg.Logout(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Logged out %s\n", args[0])
				return nil
			})
		},
	}
}

func tokenCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count active sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(ctx context.Context, reg *session.Registry, _ *popularity.Ranker) error {
				n, err := reg.Count(ctx)
				if err != nil {
					return err
				}
				fmt.Println(n)
				return nil
			})
		},
	}
}
