package engine

// Phase is the position of a synchronize run in its lifecycle. The loop in
// Synchronize owns the counters; the transitions themselves live here as a
// pure function so the terminal conditions are testable in isolation.
type Phase int

const (
	// PhaseIdle is the starting phase, and the resting phase of a run that
	// found nothing to publish.
	PhaseIdle Phase = iota
	// PhaseStaged means changes are staged in the index.
	PhaseStaged
	// PhaseCommitted means a local commit exists awaiting publish.
	PhaseCommitted
	// PhasePublished is the terminal success phase.
	PhasePublished
	// PhaseRetrying means a publish failed and another attempt will run.
	PhaseRetrying
	// PhaseExhausted is the terminal failure phase.
	PhaseExhausted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStaged:
		return "staged"
	case PhaseCommitted:
		return "committed"
	case PhasePublished:
		return "published"
	case PhaseRetrying:
		return "retrying"
	case PhaseExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further attempt can change the phase.
func (p Phase) Terminal() bool {
	return p == PhasePublished || p == PhaseExhausted
}

// Advance returns the phase following outcome o. attemptsLeft reports
// whether the loop may run again after a failed publish; it is ignored for
// non-failure outcomes.
func Advance(p Phase, o Outcome, attemptsLeft bool) Phase {
	if p.Terminal() {
		return p
	}
	switch o {
	case OutcomeNoChanges:
		return PhaseIdle
	case OutcomeCommitted:
		return PhaseCommitted
	case OutcomePublishSucceeded:
		return PhasePublished
	case OutcomePublishConflict, OutcomePublishFailed:
		if attemptsLeft {
			return PhaseRetrying
		}
		return PhaseExhausted
	default:
		return p
	}
}
