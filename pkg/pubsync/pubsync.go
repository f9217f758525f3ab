// Package pubsync provides the public Go library API for pubsync.
//
// pubsync publishes a directory tree into a branch of a git working copy:
// it copies the source into a target location inside the checked-out tree,
// commits the result with a configured bot identity, and pushes it with
// bounded fixed-delay retry against concurrent writers.
//
// # Basic Usage
//
//	client, err := pubsync.New(pubsync.Options{RepoDir: "/path/to/checkout"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := client.Synchronize(ctx, pubsync.Request{
//	    SourceDir: "./build",
//	    TargetDir: "./published",
//	    Branch:    "main",
//	}, pubsync.SyncOptions{})
package pubsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bianoble/pubsync/internal/config"
	"github.com/bianoble/pubsync/internal/copier"
	"github.com/bianoble/pubsync/internal/engine"
	"github.com/bianoble/pubsync/internal/gitrepo"
	"github.com/bianoble/pubsync/internal/state"
)

// Options configures a pubsync client.
type Options struct {
	// RepoDir is the checked-out working copy. Default: ".".
	RepoDir string

	// ConfigPath points at a pubsync.yaml file. If empty, "pubsync.yaml"
	// is used when present and built-in defaults otherwise.
	ConfigPath string

	// Logger receives per-attempt structured logs. Default: slog.Default().
	Logger *slog.Logger
}

// Client is the main entry point for the pubsync library.
type Client struct {
	repoDir string
	cfg     *config.Config
	logger  *slog.Logger
}

// New creates a pubsync Client. The working copy is opened lazily on the
// first operation so a Client can be built before the checkout exists.
func New(opts Options) (*Client, error) {
	path := opts.ConfigPath
	explicit := path != ""
	if path == "" {
		path = "pubsync.yaml"
	}

	cfg, err := config.Load(path)
	if os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		cfg = config.Default()
	} else if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	repoDir := opts.RepoDir
	if repoDir == "" {
		repoDir = cfg.RepoDir
	}

	return &Client{
		repoDir: repoDir,
		cfg:     cfg,
		logger:  opts.Logger,
	}, nil
}

// Synchronize copies the request's source tree into its target and
// publishes the result. Empty request fields fall back to the config
// file's values before validation.
func (c *Client) Synchronize(ctx context.Context, req Request, opts SyncOptions) (*Report, error) {
	c.fillFromConfig(&req, &opts)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	repo, err := gitrepo.Open(c.repoDir)
	if err != nil {
		return nil, err
	}

	eng := &engine.Synchronizer{
		Repo:   repo,
		Copier: &copier.Copier{Root: repo.Root()},
		Logger: c.logger,
	}
	return eng.Synchronize(ctx, req, opts)
}

// Status describes the working copy and the last recorded publish.
// PublishedCommit and PublishedAt are zero when no publish was recorded.
type Status struct {
	Branch          string
	Clean           bool
	Unpushed        int
	PublishedCommit string
	PublishedAt     time.Time
}

// Status reports the current branch, worktree cleanliness, the number of
// unpushed commits and the last recorded publish for the working copy.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	repo, err := gitrepo.Open(c.repoDir)
	if err != nil {
		return nil, err
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		return nil, err
	}
	clean, err := repo.IsClean(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{Branch: branch, Clean: clean}

	// Unpushed needs a reachable history; a branch without commits simply
	// reports zero.
	if n, err := repo.Unpushed(ctx, c.cfg.Remote, branch); err == nil {
		st.Unpushed = n
	}

	rec, err := state.Load(state.DefaultPath(repo.Root()))
	if err != nil {
		return nil, err
	}
	if rec != nil {
		st.PublishedCommit = rec.Commit
		st.PublishedAt = rec.PublishedAt
	}
	return st, nil
}

func (c *Client) fillFromConfig(req *Request, opts *SyncOptions) {
	if req.SourceDir == "" {
		req.SourceDir = c.cfg.SourceDir
	}
	if req.TargetDir == "" {
		req.TargetDir = c.cfg.TargetDir
	}
	if req.Branch == "" {
		req.Branch = c.cfg.Branch
	}
	if req.Remote == "" {
		req.Remote = c.cfg.Remote
	}
	if req.Message == "" {
		req.Message = c.cfg.CommitMessage
	}
	if req.Author.Name == "" && req.Author.Email == "" {
		req.Author = Identity{Name: c.cfg.Author.Name, Email: c.cfg.Author.Email}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = c.cfg.Retry.MaxAttempts
	}
	if opts.RetryDelay <= 0 {
		if d, err := c.cfg.Retry.DelayDuration(); err == nil {
			opts.RetryDelay = d
		}
	}
}
