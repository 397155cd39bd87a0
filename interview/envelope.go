package interview

import (
	"encoding/json"
	"strings"
)

// Role identifies who authored a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StoredMessage is a persisted message row as the core sees it.
type StoredMessage struct {
	Role    Role
	Content string
}

// EncodeInput carries the fields packed into an assistant message's content.
type EncodeInput struct {
	Text         string
	QuickReplies []string
	QuestionID   *string
	TopicTitle   *string
	Report       *Report
	NextStage    Stage
}

// DecodedMessage is the display-facing form of a stored message.
type DecodedMessage struct {
	Role         Role        `json:"role"`
	Text         string      `json:"text"`
	Report       *ReportView `json:"report"`
	QuickReplies []string    `json:"quick_replies"`
	QuestionID   *string     `json:"question_id"`
	TopicTitle   *string     `json:"topic_title"`
	NextStage    Stage       `json:"next_stage,omitempty"`
}

type envelopeOut struct {
	Text         string   `json:"text"`
	QuickReplies []string `json:"quick_replies,omitempty"`
	QuestionID   *string  `json:"question_id,omitempty"`
	TopicTitle   *string  `json:"topic_title,omitempty"`
	Report       *Report  `json:"report,omitempty"`
	NextStage    Stage    `json:"next_stage"`
}

type envelopeIn struct {
	Text            *string         `json:"text"`
	QuickReplies    []string        `json:"quick_replies"`
	QuestionID      *string         `json:"question_id"`
	QuestionIDCamel *string         `json:"questionId"`
	TopicTitle      *string         `json:"topic_title"`
	Report          json.RawMessage `json:"report"`
	NextStage       string          `json:"next_stage"`
}

// Encode serializes an assistant turn into the string stored in the message
// content column. Quick replies are only written alongside a question id.
func Encode(in EncodeInput) (string, error) {
	out := envelopeOut{
		Text:       in.Text,
		QuestionID: nonEmpty(in.QuestionID),
		TopicTitle: nonEmpty(in.TopicTitle),
		Report:     in.Report,
		NextStage:  in.NextStage,
	}
	if out.QuestionID != nil {
		out.QuickReplies = in.QuickReplies
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses stored message content for display. Content that is not a
// JSON object with a text field is returned verbatim as plain text, so rows
// written before envelopes existed decode safely. The report is projected to
// its display form and dropped entirely when nothing in it is populated.
func Decode(raw string) DecodedMessage {
	env, ok := parseEnvelope(raw)
	if !ok {
		return plain(raw)
	}

	msg := DecodedMessage{
		Text:         *env.Text,
		QuickReplies: []string{},
		QuestionID:   env.questionID(),
		TopicTitle:   nonEmpty(env.TopicTitle),
	}
	if msg.QuestionID != nil && env.QuickReplies != nil {
		msg.QuickReplies = env.QuickReplies
	}
	if stage, ok := ParseStage(env.NextStage); ok {
		msg.NextStage = stage
	}
	msg.Report = decodeReportView(env.Report)
	return msg
}

// DecodeMessage decodes a stored row. User rows are always plain text.
func DecodeMessage(m StoredMessage) DecodedMessage {
	var d DecodedMessage
	if m.Role == RoleAssistant {
		d = Decode(m.Content)
	} else {
		d = plain(m.Content)
	}
	d.Role = m.Role
	return d
}

// DecodeHistory decodes every row of a conversation, preserving order.
func DecodeHistory(messages []StoredMessage) []DecodedMessage {
	out := make([]DecodedMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, DecodeMessage(m))
	}
	return out
}

// DecodeFullReport returns the persistence form of the report carried by raw,
// scores included, validated against the report schema. It returns (nil, nil)
// when raw carries no report.
func DecodeFullReport(raw string) (*Report, error) {
	env, ok := parseEnvelope(raw)
	if !ok || isNullJSON(env.Report) {
		return nil, nil
	}
	return ParseReport(env.Report)
}

func parseEnvelope(raw string) (*envelopeIn, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var env envelopeIn
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, false
	}
	if env.Text == nil {
		return nil, false
	}
	return &env, true
}

func (e *envelopeIn) questionID() *string {
	if id := nonEmpty(e.QuestionID); id != nil {
		return id
	}
	return nonEmpty(e.QuestionIDCamel)
}

func decodeReportView(raw json.RawMessage) *ReportView {
	if isNullJSON(raw) {
		return nil
	}
	// Display decoding is lenient: scores and unknown fields are ignored.
	var view ReportView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil
	}
	if view.IsEmpty() {
		return nil
	}
	if view.Opinions == nil {
		view.Opinions = []Opinion{}
	}
	return &view
}

func plain(raw string) DecodedMessage {
	return DecodedMessage{Text: raw, QuickReplies: []string{}}
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

// AskedQuestionIDs returns the distinct question ids attached to assistant
// messages, in the order they were first asked.
func AskedQuestionIDs(history []DecodedMessage) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range history {
		if m.Role != RoleAssistant || m.QuestionID == nil {
			continue
		}
		if !seen[*m.QuestionID] {
			seen[*m.QuestionID] = true
			ids = append(ids, *m.QuestionID)
		}
	}
	return ids
}

// CurrentTopic returns the topic title of the most recent assistant message
// that has one.
func CurrentTopic(history []DecodedMessage) *string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant && history[i].TopicTitle != nil {
			return history[i].TopicTitle
		}
	}
	return nil
}
