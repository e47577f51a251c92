// mnemoctl is the maintenance CLI for a mnemo data directory: inspect
// cache statistics, export memories, prune by age, and reset the rolling
// history.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemo-labs/mnemo-go/pkg/core"
	"github.com/mnemo-labs/mnemo-go/pkg/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "mnemoctl",
		Short:        "Maintenance tooling for a mnemo memory directory",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(os.Stderr, logLevel, true)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newStatsCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newPruneCmd())
	root.AddCommand(newResetCmd())
	return root
}

func withEngine(fn func(ctx context.Context, e *core.Engine) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := core.LoadConfigFromEnv()
		if err != nil {
			return err
		}
		e, err := core.New(cfg)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cmd.Context(), e)
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show memory counts and response cache statistics",
		RunE: withEngine(func(ctx context.Context, e *core.Engine) error {
			count, err := e.Memories().Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("memories:        %d\n", count)
			fmt.Printf("history turns:   %d\n", e.History().Len())

			stats := e.CacheStats()
			if stats.Total == 0 {
				fmt.Println("cache:           no activity recorded")
				return nil
			}
			fmt.Printf("cache:           %d hits / %d calls (%.1f%%), %d entries\n",
				stats.Hits, stats.Total, stats.HitRate, stats.EntryCount)
			for bucket, s := range stats.Models {
				total := s.Hits + s.Misses
				fmt.Printf("  %-40s %d hits / %d calls\n", bucket, s.Hits, total)
			}
			return nil
		}),
	}
}

func newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all memories as JSON",
		RunE: withEngine(func(ctx context.Context, e *core.Engine) error {
			entries, err := e.Memories().GetAll(ctx)
			if err != nil {
				return err
			}
			// Embeddings are bulky and reimportable only with the same
			// embedder; leave them out of the export.
			type exported struct {
				ID        string `json:"id"`
				Document  string `json:"document"`
				Timestamp string `json:"timestamp"`
				Source    string `json:"source,omitempty"`
				Tag       string `json:"tag,omitempty"`
			}
			list := make([]exported, 0, len(entries))
			for _, entry := range entries {
				list = append(list, exported{
					ID:        entry.ID,
					Document:  entry.Document,
					Timestamp: entry.Timestamp,
					Source:    entry.Source,
					Tag:       entry.Tag,
				})
			}
			data, err := json.MarshalIndent(list, "", "  ")
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Println(string(data))
				return nil
			}
			return os.WriteFile(out, data, 0o644)
		}),
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	return cmd
}

func newPruneCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete memories older than the retention window",
		RunE: withEngine(func(ctx context.Context, e *core.Engine) error {
			retention := time.Duration(days) * 24 * time.Hour
			removed, err := e.Memories().PruneOlderThan(ctx, retention)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d memories older than %d days\n", removed, days)
			return nil
		}),
	}
	cmd.Flags().IntVar(&days, "days", 365, "retention window in days")
	return cmd
}

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Consolidate and clear the rolling chat history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset clears the rolling history; re-run with --yes to confirm")
			}
			return withEngine(func(ctx context.Context, e *core.Engine) error {
				if err := e.Reset(ctx); err != nil {
					return err
				}
				fmt.Println("history consolidated and cleared")
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
