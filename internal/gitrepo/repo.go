package gitrepo

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// DefaultRemoteName is the remote used when none is configured.
const DefaultRemoteName = "origin"

// Repo is a non-bare git working copy checked out on disk.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	root     string
}

// Open opens the working copy at path. The repository must already be
// checked out; pubsync never clones.
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, WrapErrorf(err, "opening working copy at %s", path)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, WrapError(err, "working copy has no worktree")
	}

	return &Repo{
		repo:     repo,
		worktree: worktree,
		root:     worktree.Filesystem.Root(),
	}, nil
}

// Root returns the absolute path of the worktree root.
func (r *Repo) Root() string {
	return r.root
}

// SetIdentity writes the commit identity into the repository config and
// marks the working copy as rebase-on-pull so history stays linear.
func (r *Repo) SetIdentity(ctx context.Context, name, email string) error {
	if name == "" || email == "" {
		return ErrInvalidSignature
	}

	cfg, err := r.repo.Config()
	if err != nil {
		return WrapError(err, "reading repository config")
	}

	cfg.User.Name = name
	cfg.User.Email = email
	cfg.Raw.Section("pull").SetOption("rebase", "true")

	if err := r.repo.SetConfig(cfg); err != nil {
		return WrapError(err, "writing repository config")
	}
	return nil
}

// Head returns the hash of the current HEAD commit.
func (r *Repo) Head() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", WrapError(err, "resolving HEAD")
	}
	return head.Hash().String(), nil
}

// CurrentBranch returns the short name of the checked-out branch, or the
// abbreviated commit hash when HEAD is detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", WrapError(err, "resolving HEAD")
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	hash := head.Hash().String()
	if len(hash) > 8 {
		hash = hash[:8]
	}
	return hash, nil
}

// relPath converts path into a slash-separated path relative to the
// worktree root, rejecting anything that escapes it.
func (r *Repo) relPath(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.root, path)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", WrapErrorf(err, "resolving %s against the working copy", path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", WrapErrorf(ErrOutsideWorktree, "%s", path)
	}
	return filepath.ToSlash(rel), nil
}
