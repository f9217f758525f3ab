// Synchronization operations against the remote branch: pending-change
// detection, pull-rebase and push.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// maxUnpushedWalk bounds the history walk in Unpushed.
const maxUnpushedWalk = 1000

// HasPendingChanges reports whether the working copy carries anything the
// remote branch does not have yet: staged changes, or local commits the
// remote-tracking ref has not seen. A missing remote-tracking ref counts
// as pending since the branch was never published.
func (r *Repo) HasPendingChanges(ctx context.Context, remote, branch string) (bool, error) {
	staged, err := r.HasStagedChanges(ctx)
	if err != nil {
		return false, err
	}
	if staged {
		return true, nil
	}

	head, err := r.repo.Head()
	if err != nil {
		return false, WrapError(err, "resolving HEAD")
	}

	remoteRef, err := r.remoteBranchRef(remote, branch)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Never fetched or never published; local commits are pending.
			return true, nil
		}
		return false, err
	}

	if head.Hash() == remoteRef.Hash() {
		return false, nil
	}

	// Strictly behind the remote means there is nothing local to publish.
	behind, err := r.isAncestor(head.Hash(), remoteRef.Hash())
	if err != nil {
		return false, err
	}
	return !behind, nil
}

// PullRebase linearizes local history against the remote branch. It
// fetches the branch and, when the remote has commits the local branch
// lacks, hard-resets branch, index and worktree onto the remote head.
// Local commits are dropped; the caller replays their content on top by
// re-copying, re-staging and re-committing.
//
// Returns true when the branch moved and the caller must replay.
func (r *Repo) PullRebase(ctx context.Context, remote, branch string) (bool, error) {
	if remote == "" {
		remote = DefaultRemoteName
	}

	spec := config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, remote, branch))
	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{spec},
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		// Fall through to compare heads.
	case errors.Is(err, git.ErrRemoteNotFound):
		return false, WrapErrorf(ErrRemoteMissing, "%s", remote)
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		// Remote has no commits at all; nothing to rebase onto.
		return false, nil
	case errors.Is(err, git.NoMatchingRefSpecError{}):
		// Branch does not exist on the remote yet; first publish.
		return false, nil
	default:
		return false, WrapErrorf(err, "fetching %s from %s", branch, remote)
	}

	remoteRef, err := r.remoteBranchRef(remote, branch)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, nil
		}
		return false, err
	}

	head, err := r.repo.Head()
	if err != nil {
		return false, WrapError(err, "resolving HEAD")
	}
	if head.Hash() == remoteRef.Hash() {
		return false, nil
	}

	// Strictly ahead: the push will fast-forward, no reset needed.
	ahead, err := r.isAncestor(remoteRef.Hash(), head.Hash())
	if err != nil {
		return false, err
	}
	if ahead {
		return false, nil
	}

	// Behind or diverged: move everything to the remote head so the replay
	// starts from what the remote actually has. A concurrent writer's files
	// inside the target survive this way; a softer reset would stage them
	// as deletions on the next add.
	err = r.worktree.Reset(&git.ResetOptions{
		Commit: remoteRef.Hash(),
		Mode:   git.HardReset,
	})
	if err != nil {
		return false, WrapError(err, "resetting onto remote head")
	}
	return true, nil
}

// Push publishes the branch to the remote. Pushing an already-current
// branch is not an error.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	if remote == "" {
		remote = DefaultRemoteName
	}

	spec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err := r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{spec},
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return r.updateTrackingRef(remote, branch)
	case errors.Is(err, git.ErrRemoteNotFound):
		return WrapErrorf(ErrRemoteMissing, "%s", remote)
	case errors.Is(err, git.ErrNonFastForwardUpdate),
		strings.Contains(err.Error(), "non-fast-forward"):
		return WrapErrorf(ErrNotFastForward, "pushing %s to %s", branch, remote)
	default:
		return WrapErrorf(err, "pushing %s to %s", branch, remote)
	}
}

// Unpushed counts local commits the remote-tracking ref has not seen.
// Returns 0 when the branch was never fetched. The walk is bounded; a
// history deeper than the bound reports the bound.
func (r *Repo) Unpushed(ctx context.Context, remote, branch string) (int, error) {
	head, err := r.repo.Head()
	if err != nil {
		return 0, WrapError(err, "resolving HEAD")
	}

	var remoteHash plumbing.Hash
	remoteRef, err := r.remoteBranchRef(remote, branch)
	if err == nil {
		remoteHash = remoteRef.Hash()
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return 0, err
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return 0, WrapError(err, "walking history")
	}
	defer iter.Close()

	count := 0
	for count < maxUnpushedWalk {
		commit, iterErr := iter.Next()
		if iterErr != nil {
			break
		}
		if commit.Hash == remoteHash {
			break
		}
		count++
	}
	return count, nil
}

// updateTrackingRef moves the remote-tracking ref to the local branch
// head after a push, the way git itself does.
func (r *Repo) updateTrackingRef(remote, branch string) error {
	local, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return WrapErrorf(err, "resolving local branch %s", branch)
	}
	tracking := plumbing.NewHashReference(
		plumbing.NewRemoteReferenceName(remote, branch), local.Hash())
	if err := r.repo.Storer.SetReference(tracking); err != nil {
		return WrapError(err, "updating remote-tracking ref")
	}
	return nil
}

func (r *Repo) remoteBranchRef(remote, branch string) (*plumbing.Reference, error) {
	if remote == "" {
		remote = DefaultRemoteName
	}
	name := plumbing.NewRemoteReferenceName(remote, branch)
	ref, err := r.repo.Reference(name, true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, err
		}
		return nil, WrapErrorf(err, "resolving %s", name)
	}
	return ref, nil
}

// isAncestor reports whether the commit at older is an ancestor of the
// commit at newer.
func (r *Repo) isAncestor(older, newer plumbing.Hash) (bool, error) {
	olderCommit, err := r.commitObject(older)
	if err != nil {
		return false, err
	}
	newerCommit, err := r.commitObject(newer)
	if err != nil {
		return false, err
	}

	ok, err := olderCommit.IsAncestor(newerCommit)
	if err != nil {
		return false, WrapError(err, "comparing commit ancestry")
	}
	return ok, nil
}

func (r *Repo) commitObject(hash plumbing.Hash) (*object.Commit, error) {
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, WrapErrorf(err, "loading commit %s", hash)
	}
	return commit, nil
}
