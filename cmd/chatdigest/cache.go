package main

import (
	"fmt"
	"os"
	"time"

	"chatdigest/internal/backend"
	"chatdigest/internal/report"

	"github.com/spf13/cobra"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the persistent embedding cache",
	}
	cmd.AddCommand(cacheStatsCmd())
	cmd.AddCommand(cachePruneCmd())
	return cmd
}

func cacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many embeddings are persisted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEnv()
			store, err := backend.OpenStore(cmd.Context(), e.cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("the memory backend keeps nothing between runs")
			}
			defer func() { _ = store.Close() }()

			n, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			return report.WriteJSON(os.Stdout, map[string]any{
				"backend": e.cfg.EmbeddingCacheBackend,
				"entries": n,
			})
		},
	}
}

func cachePruneCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete persisted embeddings older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			e := newEnv()
			store, err := backend.OpenStore(cmd.Context(), e.cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("the memory backend keeps nothing between runs")
			}
			defer func() { _ = store.Close() }()

			cutoff := time.Now().Add(-olderThan)
			n, err := store.Prune(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			e.logger.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("Embedding cache pruned")
			fmt.Fprintf(os.Stdout, "removed %d embeddings created before %s\n", n, cutoff.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 720*time.Hour, "age beyond which embeddings are removed")
	return cmd
}
