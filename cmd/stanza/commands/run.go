package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/stanza/internal/app"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <jobfile>",
		Short: "Run the jobs of a jobfile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}
			noCache, _ := cmd.Flags().GetBool("no-cache")
			jobs, _ := cmd.Flags().GetInt("jobs")
			showOutput, _ := cmd.Flags().GetBool("show-output")

			report, err := c.app.Run(cmd.Context(), args[0], app.RunOptions{
				NoCache:        noCache,
				MaxConcurrency: jobs,
			})
			if report != nil {
				renderRunReport(cmd.OutOrStdout(), report, showOutput)
			}
			return err
		},
	}
	cmd.Flags().BoolP("no-cache", "n", false, "Bypass the cache and force execution")
	cmd.Flags().IntP("jobs", "j", 0, "Maximum number of jobs running at once (default from config)")
	cmd.Flags().Bool("show-output", false, "Print the captured output of every job")
	return cmd
}
