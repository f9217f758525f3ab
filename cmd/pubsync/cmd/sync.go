package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bianoble/pubsync/internal/config"
	"github.com/bianoble/pubsync/internal/copier"
	"github.com/bianoble/pubsync/internal/engine"
	"github.com/bianoble/pubsync/internal/gitrepo"
	"github.com/bianoble/pubsync/internal/state"
	"github.com/spf13/cobra"
)

var (
	syncSourceDir   string
	syncTargetDir   string
	syncBranch      string
	syncRepoDir     string
	syncRemote      string
	syncMaxAttempts int
	syncRetryDelay  time.Duration
	syncMessage     string
	syncAuthorName  string
	syncAuthorEmail string
	syncDryRun      bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy a source tree into the working copy and publish it",
	Long: `Sync mirrors --source-dir into --target-dir inside the working copy,
stages and commits the result, then pull-rebases and pushes to --branch.
Failed pushes are retried with a fixed delay; the copy is additive, so files
present only in the target are never deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		req, opts, repoDir, err := buildRequest(cfg)
		if err != nil {
			return err
		}

		if err := req.Validate(); err != nil {
			fmt.Fprint(os.Stderr, cmd.UsageString())
			return err
		}

		repo, err := gitrepo.Open(repoDir)
		if err != nil {
			return err
		}

		eng := &engine.Synchronizer{
			Repo:   repo,
			Copier: &copier.Copier{Root: repo.Root()},
			Logger: slog.Default(),
		}

		report, err := eng.Synchronize(cmd.Context(), req, opts)
		if err != nil {
			return err
		}

		switch report.Outcome {
		case engine.OutcomeNoChanges:
			if opts.DryRun {
				info("Dry run: %d file(s) would be copied, %d unchanged.", report.Copied, report.Skipped)
			} else {
				info("No changes to publish.")
			}
		case engine.OutcomePublishSucceeded:
			info("Published %s to %s (%d copied, %d unchanged, %d attempt(s)).",
				shortHash(report.Commit), req.Branch, report.Copied, report.Skipped, len(report.Attempts))
			recordPublish(repo.Root(), req, report)
		}
		return nil
	},
}

// buildRequest merges flags over config file values over defaults.
func buildRequest(cfg *config.Config) (engine.Request, engine.Options, string, error) {
	req := engine.Request{
		SourceDir: absPath(pick(syncSourceDir, cfg.SourceDir)),
		TargetDir: absPath(pick(syncTargetDir, cfg.TargetDir)),
		Branch:    pick(syncBranch, cfg.Branch),
		Remote:    pick(syncRemote, cfg.Remote),
		Message:   pick(syncMessage, cfg.CommitMessage),
		Author: engine.Identity{
			Name:  pick(syncAuthorName, cfg.Author.Name),
			Email: pick(syncAuthorEmail, cfg.Author.Email),
		},
	}

	cfgDelay, err := cfg.Retry.DelayDuration()
	if err != nil {
		return req, engine.Options{}, "", fmt.Errorf("invalid retry delay in config: %w", err)
	}

	opts := engine.Options{
		MaxAttempts: pickInt(syncMaxAttempts, cfg.Retry.MaxAttempts),
		RetryDelay:  pickDuration(syncRetryDelay, cfgDelay),
		DryRun:      syncDryRun,
	}

	repoDir := pick(syncRepoDir, cfg.RepoDir)
	return req, opts, repoDir, nil
}

// recordPublish saves the publish record; failure to record is reported
// but never fails a sync that already pushed.
func recordPublish(root string, req engine.Request, report *engine.Report) {
	rec := &state.Record{
		Commit:       report.Commit,
		Branch:       req.Branch,
		Remote:       req.Remote,
		FilesCopied:  report.Copied,
		FilesSkipped: report.Skipped,
		PublishedAt:  time.Now().UTC(),
	}
	if err := state.Save(state.DefaultPath(root), rec); err != nil {
		errorf("recording publish state: %s", err)
	}
}

func init() {
	syncCmd.Flags().StringVar(&syncSourceDir, "source-dir", "", "directory to publish (required)")
	syncCmd.Flags().StringVar(&syncTargetDir, "target-dir", "", "destination inside the working copy (required)")
	syncCmd.Flags().StringVar(&syncBranch, "branch", "", "branch to publish to (required)")
	syncCmd.Flags().StringVar(&syncRepoDir, "repo-dir", "", "working copy location (default \".\")")
	syncCmd.Flags().StringVar(&syncRemote, "remote", "", "remote to push to (default \"origin\")")
	syncCmd.Flags().IntVar(&syncMaxAttempts, "max-attempts", 0, "publish attempts before giving up (default 3)")
	syncCmd.Flags().DurationVar(&syncRetryDelay, "retry-delay", 0, "fixed pause between attempts (default 5s)")
	syncCmd.Flags().StringVar(&syncMessage, "message", "", "commit message template")
	syncCmd.Flags().StringVar(&syncAuthorName, "author-name", "", "commit author name")
	syncCmd.Flags().StringVar(&syncAuthorEmail, "author-email", "", "commit author email")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "show the copy plan without writing, committing or pushing")

	rootCmd.AddCommand(syncCmd)
}
