// Package gitrepo wraps go-git with the task-oriented operations pubsync
// needs to publish a synced tree: stage, commit, pull-rebase, push.
// All sentinel errors can be checked with errors.Is().
package gitrepo

import (
	"errors"
	"fmt"
)

// ErrNoChanges is returned when a commit is requested but nothing is staged.
var ErrNoChanges = errors.New("no changes staged for commit")

// ErrNotFastForward is returned when a push is rejected because the remote
// branch moved and the local history is not a strict extension of it.
var ErrNotFastForward = errors.New("not a fast-forward")

// ErrRemoteMissing is returned when the configured remote does not exist
// in the working copy.
var ErrRemoteMissing = errors.New("remote not found")

// ErrOutsideWorktree is returned when a path handed to a worktree operation
// does not resolve inside the working copy.
var ErrOutsideWorktree = errors.New("path outside working copy")

// ErrInvalidSignature is returned when a commit is attempted without a
// complete author name and email.
var ErrInvalidSignature = errors.New("author name and email are required")

// WrapError adds context to an error while keeping sentinel checks working.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf adds formatted context to an error while keeping sentinel
// checks working.
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
