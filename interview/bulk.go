package interview

import (
	"fmt"
	"strings"
)

// bulkStrategy asks every predefined question once, in order, before any
// follow-up probing is allowed.
type bulkStrategy struct{}

func (bulkStrategy) Mode() Mode { return ModeBulk }

func (bulkStrategy) NextQuestionID(history []DecodedMessage, questions []Question) *string {
	return FirstUnasked(questions, AskedQuestionIDs(history))
}

func (bulkStrategy) BuildPrompt(p PromptParams) string {
	var b strings.Builder
	baseSections(&b, p)

	next := FindQuestion(p.Questions, p.NextQuestionID)
	if next != nil {
		fmt.Fprintf(&b, `
QUESTIONING APPROACH (first pass):
Ask the predefined questions one at a time in order. Do not ask follow-up or deep-dive questions
yet, even if an answer is short; acknowledge it in one sentence and move on.

NEXT QUESTION (ask it now, in your own words):
- id: %s
- question: %s
Set "question_id" to %q.
`, next.ID, next.Text, next.ID)
		if len(next.QuickReplies) > 0 {
			fmt.Fprintf(&b, "The respondent will be offered these quick replies: %s\n", strings.Join(next.QuickReplies, " / "))
		}
	} else {
		b.WriteString(`
QUESTIONING APPROACH (deep dive):
Every predefined question has been asked. Dig into the respondent's most interesting answers with
open-ended follow-ups. Set "question_id" to null.
`)
	}

	bookkeepingSection(&b, p)
	chatStageGuidance(&b, p)
	b.WriteString(chatOutputFormat)
	return b.String()
}
