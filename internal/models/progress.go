package models

// Phase is one stage of a dispatch job. Phases advance strictly in the
// order below and never go backward; PhaseDone is terminal and is always
// eventually reached, even on total failure.
type Phase int

const (
	PhaseTokens Phase = iota
	PhaseSending
	PhaseCleanup
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseTokens:
		return "tokens"
	case PhaseSending:
		return "sending"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "done"
	}
}

// Progress is a cumulative snapshot handed to progress callbacks. Callbacks
// are best-effort UI hints; a missed one never affects the final aggregate.
type Progress struct {
	Phase          Phase
	Sent           int
	Success        int
	Failed         int
	InvalidRemoved int
	Total          int
}

// ProgressFunc receives progress snapshots during a dispatch. May be nil.
type ProgressFunc func(Progress)
