package interview

import (
	"fmt"
	"strings"
)

// loopStrategy digs into each predefined question with follow-ups before
// advancing to the next one.
type loopStrategy struct{}

func (loopStrategy) Mode() Mode { return ModeLoop }

func (loopStrategy) NextQuestionID(history []DecodedMessage, questions []Question) *string {
	return FirstUnasked(questions, AskedQuestionIDs(history))
}

func (loopStrategy) BuildPrompt(p PromptParams) string {
	var b strings.Builder
	baseSections(&b, p)

	b.WriteString(`
QUESTIONING APPROACH:
Work through the predefined questions in order. After each answer, ask follow-up questions until
the respondent's view on that topic is concrete (who is affected, how, and why). Then move to the
next predefined question.
`)

	current := currentLoopQuestion(p)
	if current != nil {
		fmt.Fprintf(&b, "\nCURRENT QUESTION:\n- id: %s\n- question: %s\n", current.ID, current.Text)
		if current.FollowUpGuide != nil && strings.TrimSpace(*current.FollowUpGuide) != "" {
			fmt.Fprintf(&b, "- follow-up guide: %s\n", strings.TrimSpace(*current.FollowUpGuide))
		}
		b.WriteString(`While following up on it, set "question_id" to null.` + "\n")
	}

	if next := FindQuestion(p.Questions, p.NextQuestionID); next != nil {
		fmt.Fprintf(&b, `
NEXT QUESTION (ask it once the current topic is covered):
- id: %s
- question: %s
When you ask it, set "question_id" to %q.
`, next.ID, next.Text, next.ID)
		if next.FollowUpGuide != nil && current == nil && strings.TrimSpace(*next.FollowUpGuide) != "" {
			fmt.Fprintf(&b, "- follow-up guide: %s\n", strings.TrimSpace(*next.FollowUpGuide))
		}
	} else if len(p.Questions) > 0 {
		b.WriteString("\nThis is the last predefined question. Once it is covered, move to the summary.\n")
	}

	bookkeepingSection(&b, p)
	chatStageGuidance(&b, p)
	b.WriteString(chatOutputFormat)
	return b.String()
}

// currentLoopQuestion is the most recently asked predefined question.
func currentLoopQuestion(p PromptParams) *Question {
	if len(p.AskedIDs) == 0 {
		return nil
	}
	last := p.AskedIDs[len(p.AskedIDs)-1]
	return FindQuestion(p.Questions, &last)
}
