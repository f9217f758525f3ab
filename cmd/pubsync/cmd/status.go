package cmd

import (
	"github.com/bianoble/pubsync/internal/gitrepo"
	"github.com/bianoble/pubsync/internal/state"
	"github.com/spf13/cobra"
)

var statusRepoDir string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the working copy state and the last recorded publish",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		repo, err := gitrepo.Open(pick(statusRepoDir, cfg.RepoDir))
		if err != nil {
			return err
		}

		branch, err := repo.CurrentBranch()
		if err != nil {
			return err
		}

		clean, err := repo.IsClean(cmd.Context())
		if err != nil {
			return err
		}

		info("Branch:    %s", branch)
		if clean {
			info("Worktree:  clean")
		} else {
			info("Worktree:  dirty")
		}

		unpushed, err := repo.Unpushed(cmd.Context(), cfg.Remote, branch)
		if err == nil {
			info("Unpushed:  %d commit(s)", unpushed)
		}

		rec, err := state.Load(state.DefaultPath(repo.Root()))
		if err != nil {
			return err
		}
		if rec == nil {
			info("Published: never")
			return nil
		}
		info("Published: %s to %s/%s at %s (%d copied, %d unchanged)",
			shortHash(rec.Commit), rec.Remote, rec.Branch,
			rec.PublishedAt.Format("2006-01-02 15:04:05 MST"),
			rec.FilesCopied, rec.FilesSkipped)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusRepoDir, "repo-dir", "", "working copy location (default \".\")")
	rootCmd.AddCommand(statusCmd)
}
