package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"order_pacer/internal/generator"
	"order_pacer/internal/store/sqlite"
)

func newImportSamplesCmd(flags *rootFlags) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import-samples <file.csv>",
		Short: "Load name/phone samples from a CSV file",
		Long: `Load name/phone samples from a CSV file into the sqlite store.

The header must name a first-name column and a phone column; a last-name
column is optional. Rows without a first name or phone are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			samples, err := generator.ParseSamplesCSV(f)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
			if err != nil {
				return fmt.Errorf("open sqlite: %w", err)
			}
			defer store.Close()

			if replace {
				if err := store.DeleteSamples(ctx); err != nil {
					return err
				}
			}
			n, err := store.ImportSamples(ctx, samples)
			if err != nil {
				return err
			}
			total, err := store.CountSamples(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d samples (%d total)\n", n, total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "delete existing samples first")
	return cmd
}
