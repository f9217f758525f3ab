package pubsync

import "github.com/bianoble/pubsync/internal/engine"

// Request describes one synchronize-and-publish invocation.
type Request = engine.Request

// SyncOptions control retry behaviour for a synchronize run.
type SyncOptions = engine.Options

// Report summarizes a completed synchronize run.
type Report = engine.Report

// Attempt records one entry in the retry loop's history.
type Attempt = engine.Attempt

// Identity is the author recorded on publish commits.
type Identity = engine.Identity

// Outcome classifies what a synchronize run did.
type Outcome = engine.Outcome

// Phase is the position of a synchronize run in its lifecycle.
type Phase = engine.Phase

// Outcome values.
const (
	OutcomeNoChanges        = engine.OutcomeNoChanges
	OutcomeCommitted        = engine.OutcomeCommitted
	OutcomePublishSucceeded = engine.OutcomePublishSucceeded
	OutcomePublishConflict  = engine.OutcomePublishConflict
	OutcomePublishFailed    = engine.OutcomePublishFailed
)

// Phase values.
const (
	PhaseIdle      = engine.PhaseIdle
	PhaseStaged    = engine.PhaseStaged
	PhaseCommitted = engine.PhaseCommitted
	PhasePublished = engine.PhasePublished
	PhaseRetrying  = engine.PhaseRetrying
	PhaseExhausted = engine.PhaseExhausted
)

// Sentinel errors surfaced by Synchronize.
var (
	ErrInvalidRequest    = engine.ErrInvalidRequest
	ErrAttemptsExhausted = engine.ErrAttemptsExhausted
)

// Retry defaults.
const (
	DefaultMaxAttempts = engine.DefaultMaxAttempts
	DefaultRetryDelay  = engine.DefaultRetryDelay
)
