package cli

import (
	"fmt"

	"github.com/localnerve/formentries/internal/models"
	"github.com/spf13/cobra"
)

func newStatusCommand(opts *RootOptions, name string) *cobra.Command {
	status, short := models.ProjectLocked, "Lock a project for bulk deletion"
	if name == "unlock" {
		status, short = models.ProjectActive, "Return a locked project to active"
	}

	return &cobra.Command{
		Use:          name + " <project>",
		Short:        short,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, release, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer release()

			project, err := a.Repo.FindProjectByRef(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.Repo.SetProjectStatus(ctx, project.ID, status); err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts.Format,
				map[string]string{"project": project.Ref, "status": status},
				fmt.Sprintf("%s: %s", project.Ref, status))
		},
	}
}

func newStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "stats <project>",
		Short:        "Show the entry and media counters of a project",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, release, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer release()

			project, err := a.Repo.FindProjectByRef(ctx, args[0])
			if err != nil {
				return err
			}
			row, err := a.Repo.FindStats(ctx, project.ID)
			if err != nil {
				return err
			}
			stats, err := row.Ledger()
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts.Format, stats, fmt.Sprintf(
				"%s: %d entries in %d forms, %d files (%d bytes)",
				project.Ref, stats.TotalEntries, len(stats.FormCounts), stats.TotalFiles, stats.TotalBytes))
		},
	}
}
