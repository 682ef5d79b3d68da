package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
)

func (c *CLI) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := c.app.CacheStats(cmd.Context())
			if err != nil {
				return err
			}
			renderCacheStats(cmd.OutOrStdout(), stats)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := c.app.ClearCache(cmd.Context())
			if err != nil {
				return err
			}
			printRemoved(cmd, n)
			return nil
		},
	})

	invalidate := &cobra.Command{
		Use:   "invalidate <prefix>",
		Short: "Remove cached results whose key starts with prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byJob, _ := cmd.Flags().GetBool("job")

			var (
				n   int64
				err error
			)
			if byJob {
				n, err = c.app.InvalidateJob(cmd.Context(), args[0])
			} else {
				n, err = c.app.InvalidateCache(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			printRemoved(cmd, n)
			return nil
		},
	}
	invalidate.Flags().Bool("job", false, "Treat the argument as a job name and remove all of its results")
	cmd.AddCommand(invalidate)

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Remove expired results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := c.app.SweepCache(cmd.Context())
			if err != nil {
				return err
			}
			printRemoved(cmd, n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "evict <keep>",
		Short: "Keep the most recently used results and remove the rest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, err := strconv.Atoi(args[0])
			if err != nil {
				return zerr.With(zerr.Wrap(err, "invalid keep count"), "keep", args[0])
			}
			n, err := c.app.EvictCache(cmd.Context(), keep)
			if err != nil {
				return err
			}
			printRemoved(cmd, n)
			return nil
		},
	})

	return cmd
}

func printRemoved(cmd *cobra.Command, n int64) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries\n", n)
}
