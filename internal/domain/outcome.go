package domain

// GenerationResult is the raw result of one backend generation call.
// Text may be empty; Feedback is present only when the backend returned a
// safety indicator alongside the (missing) text.
type GenerationResult struct {
	Text     string
	Feedback *SafetyFeedback
}

// SafetyFeedback explains why generated content was withheld.
type SafetyFeedback struct {
	BlockReason string
}

// OutcomeKind enumerates the four ways a generation call can end.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeBlocked
	OutcomeEmpty
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailure:
		return "failure"
	}
	return "unknown"
}

// Outcome is the classified result of one generation call. It is resolved
// exactly once per event; the raw GenerationResult is not re-inspected
// afterwards. Exactly one of Text, Reason, Err is meaningful, depending on
// Kind.
type Outcome struct {
	Kind   OutcomeKind
	Text   string // OutcomeSuccess
	Reason string // OutcomeBlocked
	Err    error  // OutcomeFailure
}
