package interview

import (
	"encoding/json"
	"strings"
)

// GeneratorOutput is the generator's complete response for one turn, parsed
// leniently. Structured is false when the response was not an envelope, in
// which case Text holds the raw response.
type GeneratorOutput struct {
	Structured   bool
	Text         string
	QuickReplies []string
	QuestionID   *string
	TopicTitle   *string
	NextStage    string
	Report       *Report
	// ReportErr is set when a report was present but failed validation.
	ReportErr error
}

// ParseGeneratorOutput parses the buffered generator text at the end of a
// stream. Markdown code fences around the JSON are tolerated.
func ParseGeneratorOutput(full string) GeneratorOutput {
	body := StripCodeFence(full)
	env, ok := parseEnvelope(body)
	if !ok {
		return GeneratorOutput{Text: full}
	}

	out := GeneratorOutput{
		Structured:   true,
		Text:         *env.Text,
		QuickReplies: env.QuickReplies,
		QuestionID:   env.questionID(),
		TopicTitle:   nonEmpty(env.TopicTitle),
		NextStage:    env.NextStage,
	}
	if !isNullJSON(env.Report) {
		out.Report, out.ReportErr = ParseReport(env.Report)
	}
	return out
}

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return strings.Trim(text, "`")
	}
	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.Join(lines[1:endIdx], "\n")
}

// PartialText extracts the text field from an incomplete JSON envelope so a
// streaming consumer can show progress before the object closes. It returns
// false until the text field has started.
func PartialText(buffered string) (string, bool) {
	body := StripCodeFence(buffered)
	idx := strings.Index(body, `"text"`)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimLeft(body[idx+len(`"text"`):], " \t\r\n")
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	rest = strings.TrimLeft(rest[1:], " \t\r\n")
	if !strings.HasPrefix(rest, `"`) {
		return "", false
	}
	rest = rest[1:]

	// Walk to the closing quote, keeping only complete escape sequences.
	end := len(rest)
	for i := 0; i < len(rest); i++ {
		if rest[i] == '\\' {
			if i+1 >= len(rest) {
				end = i
				break
			}
			if rest[i+1] == 'u' && i+6 > len(rest) {
				end = i
				break
			}
			i++
			continue
		}
		if rest[i] == '"' {
			end = i
			break
		}
	}
	var s string
	if err := json.Unmarshal([]byte(`"`+rest[:end]+`"`), &s); err != nil {
		return "", false
	}
	return s, true
}
