package interview

import (
	"fmt"
	"testing"
)

func TestRoundScore(t *testing.T) {
	tests := []struct {
		in     float64
		want   int
		wantOK bool
	}{
		{100.4, 100, true},
		{100.5, 101, false},
		{-0.4, 0, true},
		{-0.5, -1, false},
		{0, 0, true},
		{49.5, 50, true},
		{72, 72, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			got, ok := RoundScore(tt.in)
			if ok != tt.wantOK {
				t.Errorf("RoundScore(%v) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("RoundScore(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func scoredReport(total string) string {
	return `{"summary":"s","stance":"neutral","role":"work_related","role_description":"d","role_title":"運送業",` +
		`"opinions":[{"title":"a","content":"b"}],` +
		`"scores":{"total":` + total + `,"clarity":10.2,"specificity":20,"impact":30,"constructiveness":40,"reasoning":"r"}}`
}

func TestParseReport(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantField string
	}{
		{name: "valid", raw: scoredReport("88.6")},
		{name: "score rounds down into range", raw: scoredReport("100.4")},
		{name: "score rounds out of range", raw: scoredReport("100.5"), wantErr: true, wantField: "scores.total"},
		{name: "negative score rounds to zero", raw: scoredReport("-0.4")},
		{name: "score is a string", raw: scoredReport(`"90"`), wantErr: true},
		{name: "missing score dimension", raw: `{"summary":"s","scores":{"total":1,"clarity":1,"specificity":1,"impact":1}}`, wantErr: true, wantField: "scores.constructiveness"},
		{name: "no scores block", raw: `{"summary":"s","stance":"for"}`},
		{name: "four opinions", raw: `{"summary":"s","opinions":[{"title":"1","content":"c"},{"title":"2","content":"c"},{"title":"3","content":"c"},{"title":"4","content":"c"}]}`, wantErr: true, wantField: "opinions"},
		{name: "three opinions", raw: `{"summary":"s","opinions":[{"title":"1","content":"c"},{"title":"2","content":"c"},{"title":"3","content":"c"}]}`},
		{name: "role title of ten characters", raw: `{"summary":"s","role_title":"一二三四五六七八九十"}`},
		{name: "role title of eleven characters", raw: `{"summary":"s","role_title":"一二三四五六七八九十一"}`, wantErr: true, wantField: "role_title"},
		{name: "unknown stance", raw: `{"summary":"s","stance":"maybe"}`, wantErr: true, wantField: "stance"},
		{name: "unknown role", raw: `{"summary":"s","role":"politician"}`, wantErr: true, wantField: "role"},
		{name: "unknown field", raw: `{"summary":"s","sentiment":"positive"}`, wantErr: true},
		{name: "unknown score field", raw: `{"summary":"s","scores":{"total":1,"clarity":1,"specificity":1,"impact":1,"constructiveness":1,"novelty":3}}`, wantErr: true},
		{name: "opinion without content", raw: `{"summary":"s","opinions":[{"title":"t"}]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := ParseReport([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseReport() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !IsValidationError(err) {
					t.Errorf("error %v is not a ValidationError", err)
				}
				if tt.wantField != "" {
					ve := err.(*ValidationError)
					if ve.Field != tt.wantField {
						t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
					}
				}
				return
			}
			if report == nil {
				t.Fatal("report = nil")
			}
		})
	}
}

func TestParseReportRoundsScores(t *testing.T) {
	report, err := ParseReport([]byte(scoredReport("88.6")))
	if err != nil {
		t.Fatalf("ParseReport() error = %v", err)
	}
	if report.Scores.Total != 89 {
		t.Errorf("Total = %d, want 89", report.Scores.Total)
	}
	if report.Scores.Clarity != 10 {
		t.Errorf("Clarity = %d, want 10", report.Scores.Clarity)
	}
	byMetric := report.Scores.ByMetric()
	for _, metric := range ScoreMetrics {
		if _, ok := byMetric[metric]; !ok {
			t.Errorf("ByMetric() missing %q", metric)
		}
	}
}

func TestValidateForCompletion(t *testing.T) {
	full, err := ParseReport([]byte(scoredReport("50")))
	if err != nil {
		t.Fatalf("ParseReport() error = %v", err)
	}
	if err := full.ValidateForCompletion(); err != nil {
		t.Errorf("ValidateForCompletion() on full report error = %v", err)
	}

	unscored := *full
	unscored.Scores = nil
	if err := unscored.ValidateForCompletion(); !IsValidationError(err) {
		t.Errorf("ValidateForCompletion() without scores error = %v, want ValidationError", err)
	}

	var missing *Report
	if err := missing.ValidateForCompletion(); !IsValidationError(err) {
		t.Errorf("ValidateForCompletion() on nil error = %v, want ValidationError", err)
	}
}

func TestReportViewIsEmpty(t *testing.T) {
	if !(&ReportView{}).IsEmpty() {
		t.Error("zero view should be empty")
	}
	if (&ReportView{Summary: "s"}).IsEmpty() {
		t.Error("view with summary should not be empty")
	}
	if (&ReportView{RoleTitle: "学生"}).IsEmpty() {
		t.Error("view with role title should not be empty")
	}
}
