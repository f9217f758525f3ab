package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRequest is returned when a request is missing a required field.
// Nothing is touched on disk or in the repository before this check passes.
var ErrInvalidRequest = errors.New("invalid request")

// ErrAttemptsExhausted is returned when every publish attempt failed.
// Local commits from the failed attempts are left in the working copy.
var ErrAttemptsExhausted = errors.New("publish attempts exhausted")

// Identity is the author recorded on publish commits.
type Identity struct {
	Name  string
	Email string
}

// Request describes one synchronize-and-publish invocation. SourceDir,
// TargetDir and Branch are required; the rest have configured defaults.
type Request struct {
	SourceDir string
	TargetDir string
	Branch    string
	Remote    string
	Author    Identity
	Message   string
}

// Validate reports every missing required field at once.
func (r *Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.SourceDir) == "" {
		missing = append(missing, "source-dir")
	}
	if strings.TrimSpace(r.TargetDir) == "" {
		missing = append(missing, "target-dir")
	}
	if strings.TrimSpace(r.Branch) == "" {
		missing = append(missing, "branch")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Outcome classifies what a single pass through the retry loop did.
type Outcome int

const (
	// OutcomeNoChanges means the target already matched the remote branch.
	OutcomeNoChanges Outcome = iota
	// OutcomeCommitted means staged changes were committed locally.
	OutcomeCommitted
	// OutcomePublishSucceeded means the branch was pushed to the remote.
	OutcomePublishSucceeded
	// OutcomePublishConflict means the push lost a race with another writer.
	OutcomePublishConflict
	// OutcomePublishFailed means the push failed for any other reason.
	OutcomePublishFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoChanges:
		return "no-changes"
	case OutcomeCommitted:
		return "committed"
	case OutcomePublishSucceeded:
		return "publish-succeeded"
	case OutcomePublishConflict:
		return "publish-conflict"
	case OutcomePublishFailed:
		return "publish-failed"
	default:
		return "unknown"
	}
}

// Options control retry behaviour.
type Options struct {
	// MaxAttempts bounds the retry loop. Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// RetryDelay is the fixed pause between failed attempts. No backoff:
	// the delay sequence is part of the observable contract.
	RetryDelay time.Duration

	// DryRun computes the copy plan without writing, committing or pushing.
	DryRun bool
}

// Defaults applied when Options fields are zero.
const DefaultMaxAttempts = 3

// DefaultRetryDelay is the fixed pause between failed publish attempts.
const DefaultRetryDelay = 5 * time.Second

func (o *Options) applyDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
}

// Attempt records one entry in the retry loop's history.
type Attempt struct {
	Number  int
	Outcome Outcome
	Commit  string
	Err     error
}

// Report summarizes a completed synchronize run.
type Report struct {
	Outcome Outcome
	Phase   Phase
	Commit  string // pushed commit hash, empty for no-changes runs
	Copied  int
	Skipped int

	// Attempts holds the full loop history, in order. A single attempt
	// may contribute several entries (a commit followed by a push result).
	Attempts []Attempt
}

func (r *Report) record(number int, outcome Outcome, commit string, err error) {
	r.Attempts = append(r.Attempts, Attempt{
		Number:  number,
		Outcome: outcome,
		Commit:  commit,
		Err:     err,
	})
}
