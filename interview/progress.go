package interview

import "math"

const (
	chatProgressCeiling = 80
	summaryProgress     = 90
	completeProgress    = 100
)

// ProgressState is what the respondent's progress bar shows.
type ProgressState struct {
	Percentage   int     `json:"percentage"`
	CurrentTopic *string `json:"current_topic"`
	ShowSkip     bool    `json:"show_skip"`
}

// Progress estimates how far the interview has come. It returns nil when
// there is no question count to measure against.
//
// In the chat stage the question currently being asked is not counted as
// completed, so progress only moves once the next question is put.
func Progress(totalQuestions int, stage Stage, history []DecodedMessage) *ProgressState {
	if totalQuestions <= 0 {
		return nil
	}
	state := &ProgressState{CurrentTopic: CurrentTopic(history)}

	switch stage {
	case StageSummaryComplete:
		state.Percentage = completeProgress
	case StageSummary:
		state.Percentage = summaryProgress
	default:
		completed := len(AskedQuestionIDs(history)) - 1
		if completed < 0 {
			completed = 0
		}
		state.Percentage = int(math.Round(float64(completed) / float64(totalQuestions) * chatProgressCeiling))
		state.ShowSkip = true
	}
	return state
}
