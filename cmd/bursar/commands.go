package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the edition catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configured edition catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		cat, err := cfg.Catalog.BuildCatalog()
		if err != nil {
			return fmt.Errorf("catalog is invalid: %w", err)
		}
		printCatalog(cmd, cat)
		return nil
	},
}

func printCatalog(cmd *cobra.Command, cat *catalog.Catalog) {
	out := cmd.OutOrStdout()
	keys := cat.Keys()
	fmt.Fprintf(out, "catalog v%d: %d modules, %d features\n", cat.Version(), len(keys.Modules), len(keys.Features))
	for _, ed := range cat.Editions() {
		state := "active"
		if !ed.IsActive {
			state = "inactive"
		}
		fmt.Fprintf(out, "  %-12s %-24s modules=%d features=%d %s\n",
			ed.Code, ed.Name, len(ed.Modules), len(ed.Features), state)
	}
}

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Invoice maintenance",
}

var sweepAsOf string

var invoicesSweepCmd = &cobra.Command{
	Use:   "sweep-overdue",
	Short: "Mark issued invoices past their due date as overdue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}

		asOf := time.Now().UTC()
		if sweepAsOf != "" {
			asOf, err = time.Parse(time.RFC3339, sweepAsOf)
			if err != nil {
				return fmt.Errorf("invalid --as-of: %w", err)
			}
		}

		n, err := withEngine(cmd.Context(), cfg, func(ctx context.Context, b *bursar.Bursar) (int, error) {
			return b.MarkOverdueInvoices(ctx, asOf)
		})
		fmt.Fprintf(cmd.OutOrStdout(), "marked %d invoices overdue\n", n)
		return err
	},
}

// withEngine opens the configured store, starts an engine on it and runs fn.
func withEngine(ctx context.Context, cfg *Config, fn func(context.Context, *bursar.Bursar) (int, error)) (int, error) {
	logger := newLogger(cfg.Log)

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return 0, err
	}
	cat, err := cfg.Catalog.BuildCatalog()
	if err != nil {
		_ = s.Close()
		return 0, fmt.Errorf("catalog: %w", err)
	}

	engine := bursar.New(s, bursar.WithLogger(logger), bursar.WithCatalog(cat))
	if err := engine.Start(ctx); err != nil {
		_ = s.Close()
		return 0, err
	}
	defer func() { _ = engine.Stop(context.Background()) }()

	return fn(ctx, engine)
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)

	invoicesSweepCmd.Flags().StringVar(&sweepAsOf, "as-of", "", "RFC3339 cutoff (default now)")
	invoicesCmd.AddCommand(invoicesSweepCmd)
}
