// Package engine implements the synchronize-and-publish procedure: copy a
// source tree into a target inside a git working copy, commit the result
// with a bot identity, and push it to a remote branch with bounded
// fixed-delay retry against concurrent writers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bianoble/pubsync/internal/copier"
	"github.com/bianoble/pubsync/internal/gitrepo"
)

// Publisher is the version-control surface the synchronizer drives.
// internal/gitrepo provides the production implementation.
type Publisher interface {
	SetIdentity(ctx context.Context, name, email string) error
	StageAll(ctx context.Context, path string) error
	HasStagedChanges(ctx context.Context) (bool, error)
	HasPendingChanges(ctx context.Context, remote, branch string) (bool, error)
	Commit(ctx context.Context, message, name, email string) (string, error)
	PullRebase(ctx context.Context, remote, branch string) (bool, error)
	Push(ctx context.Context, remote, branch string) error
}

// TreeCopier mirrors a source tree into the target location.
type TreeCopier interface {
	CopyTree(src, dst string, dryRun bool) (copier.Stats, error)
}

// Synchronizer publishes a source tree into a branch of a working copy.
type Synchronizer struct {
	Repo   Publisher
	Copier TreeCopier
	Logger *slog.Logger

	// sleep pauses between attempts; overridable in tests. Nil means a
	// context-aware real sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// Synchronize runs the full procedure and reports what happened. The
// request is validated before anything is touched. On exhausted retries
// the working copy keeps the local commits of the final attempt; nothing
// is rolled back.
func (s *Synchronizer) Synchronize(ctx context.Context, req Request, opts Options) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	log := s.logger()
	report := &Report{Phase: PhaseIdle}

	log.Info("starting sync",
		"source", req.SourceDir,
		"target", req.TargetDir,
		"branch", req.Branch,
		"dry_run", opts.DryRun)

	stats, err := s.Copier.CopyTree(req.SourceDir, req.TargetDir, opts.DryRun)
	if err != nil {
		return report, fmt.Errorf("copying source into target: %w", err)
	}
	report.Copied = stats.Copied
	report.Skipped = stats.Skipped

	if opts.DryRun {
		log.Info("dry-run complete, no changes applied",
			"would_copy", stats.Copied, "unchanged", stats.Skipped)
		report.Outcome = OutcomeNoChanges
		return report, nil
	}

	if err := s.Repo.SetIdentity(ctx, req.Author.Name, req.Author.Email); err != nil {
		return report, fmt.Errorf("configuring commit identity: %w", err)
	}

	message, err := RenderMessage(req.Message, MessageData{
		SourceDir: req.SourceDir,
		TargetDir: req.TargetDir,
		Branch:    req.Branch,
		Files:     stats.Copied,
	})
	if err != nil {
		return report, err
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		done, err := s.attempt(ctx, req, report, attempt, message, log)
		if err == nil {
			if done {
				return report, nil
			}
			continue
		}

		var pf *publishFailure
		if !errors.As(err, &pf) {
			// Staging and committing failures are not transient; only the
			// publish step is retried.
			return report, err
		}

		lastErr = err
		outcome := classifyPublishError(err)
		attemptsLeft := attempt < opts.MaxAttempts
		report.record(attempt, outcome, report.Commit, err)
		report.Phase = Advance(report.Phase, outcome, attemptsLeft)

		if !attemptsLeft {
			break
		}
		log.Warn("publish failed, retrying",
			"attempt", attempt, "error", err, "delay", opts.RetryDelay)
		if sleepErr := s.pause(ctx, opts.RetryDelay); sleepErr != nil {
			return report, sleepErr
		}
	}

	report.Outcome = classifyPublishError(lastErr)
	log.Error("publish attempts exhausted",
		"attempts", opts.MaxAttempts, "branch", req.Branch, "error", lastErr)
	return report, fmt.Errorf("%w: %d attempts on %s: %w",
		ErrAttemptsExhausted, opts.MaxAttempts, req.Branch, lastErr)
}

// attempt runs one pass of the loop. It returns done=true on a terminal
// success (no changes, or published). Errors from the publish step are
// wrapped in publishFailure and eligible for retry; staging and commit
// errors propagate bare and abort the run.
func (s *Synchronizer) attempt(ctx context.Context, req Request, report *Report, number int, message string, log *slog.Logger) (bool, error) {
	if err := s.Repo.StageAll(ctx, req.TargetDir); err != nil {
		return false, fmt.Errorf("staging %s: %w", req.TargetDir, err)
	}
	report.Phase = PhaseStaged

	pending, err := s.Repo.HasPendingChanges(ctx, req.Remote, req.Branch)
	if err != nil {
		return false, fmt.Errorf("checking for pending changes: %w", err)
	}
	if !pending {
		log.Info("no changes to publish", "branch", req.Branch, "attempt", number)
		report.record(number, OutcomeNoChanges, "", nil)
		report.Outcome = OutcomeNoChanges
		report.Phase = Advance(report.Phase, OutcomeNoChanges, false)
		return true, nil
	}

	if err := s.commitStaged(ctx, req, report, number, message, log); err != nil {
		return false, err
	}

	rebased, err := s.Repo.PullRebase(ctx, req.Remote, req.Branch)
	if err != nil {
		return false, &publishFailure{err: fmt.Errorf("pull-rebase: %w", err)}
	}
	if rebased {
		// The working copy now matches the remote head. Replay the sync on
		// top of it: the copy is additive, so whatever the other writer
		// published stays in place.
		log.Info("rebased onto remote head", "branch", req.Branch, "attempt", number)
		stats, err := s.Copier.CopyTree(req.SourceDir, req.TargetDir, false)
		if err != nil {
			return false, fmt.Errorf("replaying copy after rebase: %w", err)
		}
		report.Copied = stats.Copied
		report.Skipped = stats.Skipped
		if err := s.Repo.StageAll(ctx, req.TargetDir); err != nil {
			return false, fmt.Errorf("re-staging %s: %w", req.TargetDir, err)
		}
		if err := s.commitStaged(ctx, req, report, number, message, log); err != nil {
			return false, err
		}
	}

	if err := s.Repo.Push(ctx, req.Remote, req.Branch); err != nil {
		return false, &publishFailure{err: err}
	}

	report.record(number, OutcomePublishSucceeded, report.Commit, nil)
	report.Outcome = OutcomePublishSucceeded
	report.Phase = Advance(report.Phase, OutcomePublishSucceeded, false)
	log.Info("published",
		"branch", req.Branch, "commit", report.Commit, "attempts", number)
	return true, nil
}

// commitStaged commits the index when it differs from HEAD. A clean index
// is not an error: a prior attempt may have already committed and the push
// alone needs retrying.
func (s *Synchronizer) commitStaged(ctx context.Context, req Request, report *Report, number int, message string, log *slog.Logger) error {
	staged, err := s.Repo.HasStagedChanges(ctx)
	if err != nil {
		return fmt.Errorf("reading staged state: %w", err)
	}
	if !staged {
		return nil
	}

	hash, err := s.Repo.Commit(ctx, message, req.Author.Name, req.Author.Email)
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	report.Commit = hash
	report.record(number, OutcomeCommitted, hash, nil)
	report.Phase = Advance(report.Phase, OutcomeCommitted, false)
	log.Info("committed changes", "commit", hash, "attempt", number)
	return nil
}

// publishFailure marks an error from the publish step as retryable.
type publishFailure struct {
	err error
}

func (e *publishFailure) Error() string { return e.err.Error() }
func (e *publishFailure) Unwrap() error { return e.err }

// classifyPublishError maps a publish failure to its outcome.
func classifyPublishError(err error) Outcome {
	if errors.Is(err, gitrepo.ErrNotFastForward) {
		return OutcomePublishConflict
	}
	return OutcomePublishFailed
}

func (s *Synchronizer) pause(ctx context.Context, d time.Duration) error {
	if s.sleep != nil {
		return s.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Synchronizer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
