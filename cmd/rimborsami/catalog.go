package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rimborsami/rimborsami/internal/cache"
	"github.com/rimborsami/rimborsami/internal/catalog"
	"github.com/rimborsami/rimborsami/internal/repository"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the opportunity catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Upsert catalog definitions from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}

		repo, err := repository.New(cfg.Repository)
		if err != nil {
			return fmt.Errorf("init repository: %w", err)
		}
		defer repo.Close()

		ctx := contextOf(cmd)
		for i := range defs {
			if err := repo.SaveOpportunity(ctx, &defs[i]); err != nil {
				return fmt.Errorf("save %s: %w", defs[i].ID, err)
			}
		}

		// Drop the cached active catalog so running servers pick up the import.
		if c, err := cache.New(cfg.Cache); err != nil {
			slog.Warn("catalog cache not invalidated", "error", err)
		} else {
			catalog.NewLoader(repo, c, cfg.Cache.CatalogTTL, slog.Default()).Invalidate(ctx)
			_ = c.Close()
		}

		fmt.Fprintf(cmd.OutOrStdout(), "imported %d opportunities from %s\n", len(defs), args[0])
		return nil
	},
}

var catalogListAll bool

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the catalog stored in the repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repository.New(cfg.Repository)
		if err != nil {
			return fmt.Errorf("init repository: %w", err)
		}
		defer repo.Close()

		defs, err := repo.ListOpportunities(contextOf(cmd), !catalogListAll)
		if err != nil {
			return err
		}
		return writePretty(cmd.OutOrStdout(), defs)
	},
}

func init() {
	catalogListCmd.Flags().BoolVar(&catalogListAll, "all", false, "include deactivated opportunities")
	catalogCmd.AddCommand(catalogImportCmd, catalogListCmd)
	rootCmd.AddCommand(catalogCmd)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := contextOf(cmd); ctx != nil {
		return ctx
	}
	return context.Background()
}
