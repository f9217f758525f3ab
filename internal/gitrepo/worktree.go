package gitrepo

import (
	"context"
	"errors"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// StageAll stages every change under path, including deletions. A path of
// "." stages the whole worktree.
func (r *Repo) StageAll(ctx context.Context, path string) error {
	rel, err := r.relPath(path)
	if err != nil {
		return err
	}

	if rel == "." {
		if err := r.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
			return WrapError(err, "staging worktree")
		}
		return nil
	}

	if _, err := r.worktree.Add(rel); err != nil {
		return WrapErrorf(err, "staging %s", rel)
	}
	return nil
}

// HasStagedChanges reports whether the index differs from HEAD.
func (r *Repo) HasStagedChanges(ctx context.Context) (bool, error) {
	status, err := r.worktree.Status()
	if err != nil {
		return false, WrapError(err, "reading worktree status")
	}

	for _, fileStatus := range status {
		if fileStatus.Staging != git.Unmodified && fileStatus.Staging != git.Untracked {
			return true, nil
		}
	}
	return false, nil
}

// IsClean reports whether the worktree has no staged or unstaged changes.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	status, err := r.worktree.Status()
	if err != nil {
		return false, WrapError(err, "reading worktree status")
	}
	return status.IsClean(), nil
}

// Commit creates a commit from the index with the given message and
// author identity. Returns the new commit hash.
func (r *Repo) Commit(ctx context.Context, message, name, email string) (string, error) {
	if message == "" {
		return "", errors.New("commit message cannot be empty")
	}
	if name == "" || email == "" {
		return "", ErrInvalidSignature
	}

	sig := &object.Signature{
		Name:  name,
		Email: email,
		When:  time.Now(),
	}

	hash, err := r.worktree.Commit(message, &git.CommitOptions{
		Author:    sig,
		Committer: sig,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", ErrNoChanges
		}
		return "", WrapError(err, "creating commit")
	}

	return hash.String(), nil
}
