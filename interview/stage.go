package interview

// Stage is the phase of an interview conversation. It is never stored; it is
// re-derived from the latest assistant envelope on every turn.
type Stage string

const (
	StageChat            Stage = "chat"
	StageSummary         Stage = "summary"
	StageSummaryComplete Stage = "summary_complete"
)

// transitions lists the legal edges of the stage graph.
var transitions = map[Stage][]Stage{
	StageChat:            {StageChat, StageSummary},
	StageSummary:         {StageSummary, StageSummaryComplete, StageChat},
	StageSummaryComplete: {StageSummaryComplete},
}

// ParseStage returns the stage named by s and whether it is a known value.
func ParseStage(s string) (Stage, bool) {
	switch Stage(s) {
	case StageChat, StageSummary, StageSummaryComplete:
		return Stage(s), true
	}
	return "", false
}

// IsTerminal reports whether no further turns are processed in this stage.
func (s Stage) IsTerminal() bool {
	return s == StageSummaryComplete
}

// CanTransition reports whether from -> to is an edge of the stage graph.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CurrentStage folds the history into the stage the interview is in: the
// next_stage of the most recent assistant envelope that carries a valid one.
// An empty history, or one made only of plain-text rows, is in the chat stage.
func CurrentStage(history []DecodedMessage) Stage {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role != RoleAssistant || m.NextStage == "" {
			continue
		}
		if stage, ok := ParseStage(string(m.NextStage)); ok {
			return stage
		}
	}
	return StageChat
}
