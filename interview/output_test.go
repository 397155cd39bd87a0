package interview

import "testing"

func TestParseGeneratorOutput(t *testing.T) {
	t.Run("fenced envelope", func(t *testing.T) {
		out := ParseGeneratorOutput("```json\n{\"text\":\"次の質問です\",\"question_id\":\"q2\",\"next_stage\":\"chat\"}\n```")
		if !out.Structured {
			t.Fatal("Structured = false")
		}
		if out.Text != "次の質問です" {
			t.Errorf("Text = %q", out.Text)
		}
		if out.QuestionID == nil || *out.QuestionID != "q2" {
			t.Errorf("QuestionID = %v", out.QuestionID)
		}
		if out.NextStage != "chat" {
			t.Errorf("NextStage = %q", out.NextStage)
		}
	})

	t.Run("plain text", func(t *testing.T) {
		out := ParseGeneratorOutput("ありがとうございました")
		if out.Structured || out.Text != "ありがとうございました" {
			t.Errorf("ParseGeneratorOutput() = %+v", out)
		}
	})

	t.Run("invalid report is reported, text kept", func(t *testing.T) {
		out := ParseGeneratorOutput(`{"text":"まとめです","report":{"summary":"s","mood":"x"},"next_stage":"summary"}`)
		if out.Text != "まとめです" {
			t.Errorf("Text = %q", out.Text)
		}
		if out.Report != nil {
			t.Errorf("Report = %+v, want nil", out.Report)
		}
		if !IsValidationError(out.ReportErr) {
			t.Errorf("ReportErr = %v, want ValidationError", out.ReportErr)
		}
	})
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```\n", `{"a":1}`},
		{"```json\n{\"a\":1}", `{"a":1}`},
		{"```", ""},
	}

	for _, tt := range tests {
		if got := StripCodeFence(tt.in); got != tt.want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPartialText(t *testing.T) {
	tests := []struct {
		buffered string
		want     string
		ok       bool
	}{
		{``, "", false},
		{`{"te`, "", false},
		{`{"text": "こんに`, "こんに", true},
		{`{"text":"line\nbreak`, "line\nbreak", true},
		{`{"text":"dangling\`, "dangling", true},
		{`{"text":"quote \"x\" done","next_stage":"chat"}`, `quote "x" done`, true},
	}

	for _, tt := range tests {
		got, ok := PartialText(tt.buffered)
		if ok != tt.ok || got != tt.want {
			t.Errorf("PartialText(%q) = %q, %v; want %q, %v", tt.buffered, got, ok, tt.want, tt.ok)
		}
	}
}
