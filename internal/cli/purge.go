package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// PurgeSummary reports what a purge command removed.
type PurgeSummary struct {
	Project  string `json:"project"`
	Chunks   int    `json:"chunks"`
	Entries  int64  `json:"entries"`
	Branches int64  `json:"branches"`
	Files    int64  `json:"files"`
	Done     bool   `json:"done"`
}

func newEntriesCommand(opts *RootOptions) *cobra.Command {
	var maxChunks int

	cmd := &cobra.Command{
		Use:          "entries <project>",
		Short:        "Delete all entries of a locked project",
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

			sum := PurgeSummary{Project: project.Ref}
			for maxChunks <= 0 || sum.Chunks < maxChunks {
				res, err := a.Purge.PurgeEntriesChunk(ctx, project, opts.User)
				if err != nil {
					return err
				}
				sum.Chunks++
				sum.Entries += res.EntriesDeleted
				sum.Branches += res.BranchesDeleted
				sum.Files += res.Media.Files()

				left, err := a.Repo.CountEntries(ctx, project.ID)
				if err != nil {
					return err
				}
				if left == 0 || res.EntriesDeleted == 0 {
					sum.Done = left == 0
					break
				}
			}

			return output(cmd.OutOrStdout(), opts.Format, sum, fmt.Sprintf(
				"%s: %d entries, %d branch entries, %d files deleted in %d chunks (done: %t)",
				sum.Project, sum.Entries, sum.Branches, sum.Files, sum.Chunks, sum.Done))
		},
	}

	cmd.Flags().IntVar(&maxChunks, "max-chunks", 0, "stop after this many chunks (0 runs to completion)")
	return cmd
}

func newMediaCommand(opts *RootOptions) *cobra.Command {
	var maxChunks int

	cmd := &cobra.Command{
		Use:          "media <project>",
		Short:        "Delete all media files of a locked project",
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

			sum := PurgeSummary{Project: project.Ref}
			for maxChunks <= 0 || sum.Chunks < maxChunks {
				removal, err := a.Purge.PurgeMediaChunk(ctx, project, opts.User)
				if err != nil {
					return err
				}
				sum.Chunks++
				sum.Files += removal.Files()
				if removal.Files() == 0 {
					sum.Done = true
					break
				}
			}

			return output(cmd.OutOrStdout(), opts.Format, sum, fmt.Sprintf(
				"%s: %d files deleted in %d chunks (done: %t)",
				sum.Project, sum.Files, sum.Chunks, sum.Done))
		},
	}

	cmd.Flags().IntVar(&maxChunks, "max-chunks", 0, "stop after this many chunks (0 runs to completion)")
	return cmd
}
