package interview

import (
	"encoding/json"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestDecodeFallsBackToPlainText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain text", "こんにちは、よろしくお願いします"},
		{"empty string", ""},
		{"object without text", `{"question_id":"q1","next_stage":"chat"}`},
		{"text is null", `{"text":null,"question_id":"q1"}`},
		{"text is not a string", `{"text":42}`},
		{"json array", `["text"]`},
		{"truncated json", `{"text":"hel`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.raw)
			if got.Text != tt.raw {
				t.Errorf("Text = %q, want %q", got.Text, tt.raw)
			}
			if got.Report != nil {
				t.Errorf("Report = %+v, want nil", got.Report)
			}
			if got.QuickReplies == nil || len(got.QuickReplies) != 0 {
				t.Errorf("QuickReplies = %#v, want empty slice", got.QuickReplies)
			}
			if got.QuestionID != nil {
				t.Errorf("QuestionID = %v, want nil", *got.QuestionID)
			}
			if got.TopicTitle != nil {
				t.Errorf("TopicTitle = %v, want nil", *got.TopicTitle)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw, err := Encode(EncodeInput{
		Text:         "この法案について、あなたの立場を教えてください。",
		QuickReplies: []string{"賛成", "反対"},
		QuestionID:   strPtr("q1"),
		TopicTitle:   strPtr("立場"),
		NextStage:    StageChat,
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got := Decode(raw)
	if got.Text != "この法案について、あなたの立場を教えてください。" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.QuestionID == nil || *got.QuestionID != "q1" {
		t.Errorf("QuestionID = %v, want q1", got.QuestionID)
	}
	if got.TopicTitle == nil || *got.TopicTitle != "立場" {
		t.Errorf("TopicTitle = %v, want 立場", got.TopicTitle)
	}
	if strings.Join(got.QuickReplies, ",") != "賛成,反対" {
		t.Errorf("QuickReplies = %v", got.QuickReplies)
	}
	if got.NextStage != StageChat {
		t.Errorf("NextStage = %q, want chat", got.NextStage)
	}
}

func TestEncodeOmitsQuickRepliesWithoutQuestionID(t *testing.T) {
	raw, err := Encode(EncodeInput{
		Text:         "ありがとうございます。",
		QuickReplies: []string{"はい", "いいえ"},
		NextStage:    StageChat,
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		t.Fatalf("encoded value is not JSON: %v", err)
	}
	if _, ok := fields["quick_replies"]; ok {
		t.Errorf("quick_replies present without question_id: %s", raw)
	}
	if _, ok := fields["question_id"]; ok {
		t.Errorf("question_id present: %s", raw)
	}
	if fields["next_stage"] != "chat" {
		t.Errorf("next_stage = %v, want chat", fields["next_stage"])
	}
}

func TestDecodeQuestionIDAliases(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"snake case", `{"text":"a","question_id":"q1"}`, "q1"},
		{"camel case", `{"text":"a","questionId":"q2"}`, "q2"},
		{"both prefers snake case", `{"text":"a","question_id":"q1","questionId":"q2"}`, "q1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.raw)
			if got.QuestionID == nil || *got.QuestionID != tt.want {
				t.Errorf("QuestionID = %v, want %s", got.QuestionID, tt.want)
			}
		})
	}
}

func TestDecodeReportView(t *testing.T) {
	tests := []struct {
		name    string
		report  string
		wantNil bool
	}{
		{"absent", ``, true},
		{"null", `,"report":null`, true},
		{"all empty", `,"report":{"summary":"","stance":"","role":"","role_description":"","role_title":"","opinions":[]}`, true},
		{"scores only", `,"report":{"summary":"","opinions":[],"scores":{"total":80}}`, true},
		{"summary only", `,"report":{"summary":"物流への影響を懸念","opinions":[]}`, false},
		{"stance only", `,"report":{"stance":"against"}`, false},
		{"one opinion", `,"report":{"opinions":[{"title":"t","content":"c"}]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(`{"text":"draft"` + tt.report + `,"next_stage":"summary"}`)
			if (got.Report == nil) != tt.wantNil {
				t.Errorf("Report = %+v, wantNil %v", got.Report, tt.wantNil)
			}
		})
	}
}

func TestDecodeDropsScoresFromDisplay(t *testing.T) {
	raw := `{"text":"まとめました","report":{"summary":"s","stance":"for","role":"general_citizen","role_description":"d","role_title":"会社員","opinions":[],"scores":{"total":70,"clarity":60,"specificity":50,"impact":40,"constructiveness":30,"reasoning":"r"}},"next_stage":"summary"}`

	got := Decode(raw)
	if got.Report == nil {
		t.Fatal("Report = nil")
	}
	out, err := json.Marshal(got.Report)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(out), "scores") || strings.Contains(string(out), "reasoning") {
		t.Errorf("display report leaks scores: %s", out)
	}

	full, err := DecodeFullReport(raw)
	if err != nil {
		t.Fatalf("DecodeFullReport() error = %v", err)
	}
	if full.Scores == nil || full.Scores.Total != 70 {
		t.Errorf("Scores = %+v, want total 70", full.Scores)
	}
}

func TestDecodeMessageKeepsUserTextVerbatim(t *testing.T) {
	got := DecodeMessage(StoredMessage{Role: RoleUser, Content: `{"text":"injected","question_id":"q1"}`})
	if got.Text != `{"text":"injected","question_id":"q1"}` {
		t.Errorf("Text = %q", got.Text)
	}
	if got.QuestionID != nil {
		t.Errorf("QuestionID = %v, want nil for user rows", *got.QuestionID)
	}
	if got.Role != RoleUser {
		t.Errorf("Role = %q", got.Role)
	}
}

func TestAskedQuestionIDs(t *testing.T) {
	history := []DecodedMessage{
		{Role: RoleAssistant, QuestionID: strPtr("q1")},
		{Role: RoleUser, Text: "answer"},
		{Role: RoleAssistant},
		{Role: RoleAssistant, QuestionID: strPtr("q1")},
		{Role: RoleAssistant, QuestionID: strPtr("q3")},
		{Role: RoleUser, QuestionID: strPtr("q9")},
	}

	got := AskedQuestionIDs(history)
	if strings.Join(got, ",") != "q1,q3" {
		t.Errorf("AskedQuestionIDs() = %v, want [q1 q3]", got)
	}
}
