/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/dubtran/internal/batch"
	"github.com/valpere/dubtran/internal/store"
)

var (
	historyLimit      int
	historyExportPath string
	historyClearCache bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past batches and the response cache",
	Long:  `List, show, export and clear translated batches stored in the SQLite history.`,
}

func withStore(ctx context.Context, fn func(ctx context.Context, db *store.Store) error) error {
	if cfg.DBPath == "" {
		return errors.New("history is disabled (empty --db)")
	}
	db, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	return fn(ctx, db)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, db *store.Store) error {
			batches, err := db.ListBatches(ctx, historyLimit)
			if err != nil {
				return fmt.Errorf("failed to list batches: %w", err)
			}

			if len(batches) == 0 {
				fmt.Println("No batches in history.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tPROVIDER\tMODEL\tITEMS\tELAPSED\tCACHED\tMISMATCH")
			for _, b := range batches {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%v\t%v\n",
					shortID(b.ID), b.CreatedAt.Format("2006-01-02 15:04"), b.Provider, b.Model,
					len(b.Inputs), (time.Duration(b.ElapsedMs) * time.Millisecond).String(),
					b.Cached, b.Mismatch)
			}
			return w.Flush()
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a batch side by side (ID prefix accepted)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, db *store.Store) error {
			b, err := db.GetBatch(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Batch:    %s\n", b.ID)
			fmt.Printf("Created:  %s\n", b.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Provider: %s %s\n", b.Provider, b.Model)
			fmt.Printf("Report:   %s\n\n", b.Report)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "№\tENGLISH\tHINGLISH")
			for _, r := range batch.Pair(batch.FromTexts(b.Inputs), batch.FromTexts(b.Outputs)) {
				fmt.Fprintf(w, "%d\t%s\t%s\n", r.Position, r.Original, r.Translated)
			}
			return w.Flush()
		})
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a stored batch to .json, .csv or .xlsx",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, db *store.Store) error {
			b, err := db.GetBatch(ctx, args[0])
			if err != nil {
				return err
			}
			rows := batch.Pair(batch.FromTexts(b.Inputs), batch.FromTexts(b.Outputs))
			if err := writeExport(historyExportPath, rows); err != nil {
				return err
			}
			fmt.Printf("Exported batch %s to %s\n", shortID(b.ID), historyExportPath)
			return nil
		})
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history and cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, db *store.Store) error {
			stats, err := db.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			fmt.Printf("Batches:           %d\n", stats.Batches)
			fmt.Printf("Items translated:  %d\n", stats.Items)
			fmt.Printf("With mismatches:   %d\n", stats.Mismatched)
			fmt.Printf("Average time:      %s\n", time.Duration(stats.AvgElapsedMs)*time.Millisecond)
			if !stats.LastRunAt.IsZero() {
				fmt.Printf("Last translation:  %s (%s)\n",
					time.Duration(stats.LastElapsedMs)*time.Millisecond, stats.LastRunAt.Format("2006-01-02 15:04"))
			}
			fmt.Printf("Cached responses:  %d\n", stats.CacheEntries)
			fmt.Printf("Cache hits:        %d\n", stats.CacheHits)
			return nil
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a batch by full ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, db *store.Store) error {
			if err := db.DeleteBatch(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete batch: %w", err)
			}
			fmt.Printf("Deleted batch: %s\n", args[0])
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all batches (and, with --cache, all cached responses)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, db *store.Store) error {
			n, err := db.ClearHistory(ctx)
			if err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			fmt.Printf("Cleared %d batches from history.\n", n)

			if historyClearCache {
				n, err := db.ClearCache(ctx)
				if err != nil {
					return fmt.Errorf("failed to clear cache: %w", err)
				}
				fmt.Printf("Cleared %d cached responses.\n", n)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of batches to list (0 = all)")
	historyExportCmd.Flags().StringVarP(&historyExportPath, "output", "o", "", "Output file; format from extension (required)")
	historyExportCmd.MarkFlagRequired("output")
	historyClearCmd.Flags().BoolVar(&historyClearCache, "cache", false, "Also clear the response cache")
}
