package interview

import (
	"errors"
	"fmt"
	"sort"
)

// Mode selects the questioning strategy of an interview configuration.
type Mode string

const (
	ModeLoop Mode = "loop"
	ModeBulk Mode = "bulk"
)

// ErrUnknownMode is returned for a configuration whose mode is neither loop
// nor bulk.
var ErrUnknownMode = errors.New("unknown interview mode")

// Config is the orchestrator's read-only view of an interview configuration.
type Config struct {
	ID                string
	BillID            string
	Mode              Mode
	Themes            []string
	KnowledgeSource   string
	EstimatedDuration *int
	ChatModel         *string
}

// Question is one predefined interview question.
type Question struct {
	ID            string
	Text          string
	FollowUpGuide *string
	QuickReplies  []string
	Order         int
}

// PromptParams is everything a strategy needs to build system instructions.
type PromptParams struct {
	BillContext      string
	Config           Config
	Questions        []Question
	NextQuestionID   *string
	Stage            Stage
	AskedIDs         []string
	RemainingMinutes *int
}

// Strategy chooses the next predefined question and writes the generator's
// instructions for the chat stage.
type Strategy interface {
	Mode() Mode
	BuildPrompt(p PromptParams) string
	NextQuestionID(history []DecodedMessage, questions []Question) *string
}

// StrategyFor returns the strategy for mode.
func StrategyFor(mode Mode) (Strategy, error) {
	switch mode {
	case ModeBulk:
		return bulkStrategy{}, nil
	case ModeLoop:
		return loopStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// OrderedQuestions returns a copy of questions sorted by declared order.
func OrderedQuestions(questions []Question) []Question {
	out := make([]Question, len(questions))
	copy(out, questions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// FirstUnasked returns the id of the first question, in declared order, whose
// id is not in asked. It returns nil once every question has been asked.
func FirstUnasked(questions []Question, asked []string) *string {
	seen := make(map[string]bool, len(asked))
	for _, id := range asked {
		seen[id] = true
	}
	for _, q := range OrderedQuestions(questions) {
		if !seen[q.ID] {
			id := q.ID
			return &id
		}
	}
	return nil
}

// FindQuestion returns the question with the given id, or nil.
func FindQuestion(questions []Question, id *string) *Question {
	if id == nil {
		return nil
	}
	for i := range questions {
		if questions[i].ID == *id {
			return &questions[i]
		}
	}
	return nil
}
