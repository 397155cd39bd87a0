package interview

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MaxOpinions     = 3
	MaxRoleTitleLen = 10
)

// Stance is the respondent's overall position on the bill.
type Stance string

const (
	StanceFor     Stance = "for"
	StanceAgainst Stance = "against"
	StanceNeutral Stance = "neutral"
)

// RespondentRole is the category the respondent speaks from.
type RespondentRole string

const (
	RoleSubjectExpert     RespondentRole = "subject_expert"
	RoleWorkRelated       RespondentRole = "work_related"
	RoleDailyLifeAffected RespondentRole = "daily_life_affected"
	RoleGeneralCitizen    RespondentRole = "general_citizen"
)

// ScoreMetrics names the five score dimensions in storage order.
var ScoreMetrics = []string{"total", "clarity", "specificity", "impact", "constructiveness"}

type Opinion struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// Scores grade a report for curation. They are extraction-only and must never
// reach a respondent-facing view.
type Scores struct {
	Total            int    `json:"total" validate:"min=0,max=100"`
	Clarity          int    `json:"clarity" validate:"min=0,max=100"`
	Specificity      int    `json:"specificity" validate:"min=0,max=100"`
	Impact           int    `json:"impact" validate:"min=0,max=100"`
	Constructiveness int    `json:"constructiveness" validate:"min=0,max=100"`
	Reasoning        string `json:"reasoning"`
}

// ByMetric returns the integer dimensions keyed by ScoreMetrics names.
func (s Scores) ByMetric() map[string]int {
	return map[string]int{
		"total":            s.Total,
		"clarity":          s.Clarity,
		"specificity":      s.Specificity,
		"impact":           s.Impact,
		"constructiveness": s.Constructiveness,
	}
}

// Report is the persistence-facing form of the end-of-interview report.
type Report struct {
	Summary         string         `json:"summary"`
	Stance          Stance         `json:"stance" validate:"omitempty,oneof=for against neutral"`
	Role            RespondentRole `json:"role" validate:"omitempty,oneof=subject_expert work_related daily_life_affected general_citizen"`
	RoleDescription string         `json:"role_description"`
	RoleTitle       string         `json:"role_title" validate:"max=10"`
	Opinions        []Opinion      `json:"opinions" validate:"max=3,dive"`
	Scores          *Scores        `json:"scores,omitempty"`
}

// ReportView is the respondent-facing projection of a Report.
type ReportView struct {
	Summary         string         `json:"summary"`
	Stance          Stance         `json:"stance"`
	Role            RespondentRole `json:"role"`
	RoleDescription string         `json:"role_description"`
	RoleTitle       string         `json:"role_title"`
	Opinions        []Opinion      `json:"opinions"`
}

// View drops the scores.
func (r *Report) View() *ReportView {
	if r == nil {
		return nil
	}
	opinions := r.Opinions
	if opinions == nil {
		opinions = []Opinion{}
	}
	return &ReportView{
		Summary:         r.Summary,
		Stance:          r.Stance,
		Role:            r.Role,
		RoleDescription: r.RoleDescription,
		RoleTitle:       r.RoleTitle,
		Opinions:        opinions,
	}
}

// IsEmpty reports whether nothing meaningful has been generated yet.
func (v *ReportView) IsEmpty() bool {
	return v.Summary == "" &&
		v.Stance == "" &&
		v.Role == "" &&
		v.RoleDescription == "" &&
		v.RoleTitle == "" &&
		len(v.Opinions) == 0
}

// ValidationError describes structured generator output that does not conform
// to the report schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid report: " + e.Reason
	}
	return fmt.Sprintf("invalid report: %s %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// reportWire mirrors the generator's report object. Scores arrive as JSON
// numbers that may be fractional.
type reportWire struct {
	Summary         string         `json:"summary"`
	Stance          Stance         `json:"stance"`
	Role            RespondentRole `json:"role"`
	RoleDescription string         `json:"role_description"`
	RoleTitle       string         `json:"role_title"`
	Opinions        []Opinion      `json:"opinions"`
	Scores          *scoresWire    `json:"scores"`
}

type scoresWire struct {
	Total            *float64 `json:"total"`
	Clarity          *float64 `json:"clarity"`
	Specificity      *float64 `json:"specificity"`
	Impact           *float64 `json:"impact"`
	Constructiveness *float64 `json:"constructiveness"`
	Reasoning        string   `json:"reasoning"`
}

// ParseReport decodes and validates a report object. The object is closed:
// unknown fields are rejected. Each score is rounded to the nearest integer
// before its range is checked.
func ParseReport(raw []byte) (*Report, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var w reportWire
	if err := dec.Decode(&w); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	report := &Report{
		Summary:         w.Summary,
		Stance:          w.Stance,
		Role:            w.Role,
		RoleDescription: w.RoleDescription,
		RoleTitle:       w.RoleTitle,
		Opinions:        w.Opinions,
	}
	if w.Scores != nil {
		scores, err := w.Scores.round()
		if err != nil {
			return nil, err
		}
		report.Scores = scores
	}

	if err := validate.Struct(report); err != nil {
		return nil, toValidationError(err)
	}
	return report, nil
}

type scoreField struct {
	name  string
	value *float64
	dst   *int
}

func (w *scoresWire) round() (*Scores, error) {
	scores := &Scores{Reasoning: w.Reasoning}
	fields := []scoreField{
		{"scores.total", w.Total, &scores.Total},
		{"scores.clarity", w.Clarity, &scores.Clarity},
		{"scores.specificity", w.Specificity, &scores.Specificity},
		{"scores.impact", w.Impact, &scores.Impact},
		{"scores.constructiveness", w.Constructiveness, &scores.Constructiveness},
	}
	for _, f := range fields {
		if f.value == nil {
			return nil, &ValidationError{Field: f.name, Reason: "is required"}
		}
		rounded, ok := RoundScore(*f.value)
		if !ok {
			return nil, &ValidationError{Field: f.name, Reason: fmt.Sprintf("must be between 0 and 100, got %v", *f.value)}
		}
		*f.dst = rounded
	}
	return scores, nil
}

// RoundScore rounds v to the nearest integer (halves away from zero) and
// reports whether the result lies in [0, 100].
func RoundScore(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	r := int(math.Round(v))
	return r, r >= 0 && r <= 100
}

// ValidateForCompletion applies the stricter rules of the terminal completion
// path: the report must be fully populated and scored.
func (r *Report) ValidateForCompletion() error {
	if r == nil {
		return &ValidationError{Reason: "no report has been generated"}
	}
	if err := validate.Struct(r); err != nil {
		return toValidationError(err)
	}
	switch {
	case strings.TrimSpace(r.Summary) == "":
		return &ValidationError{Field: "summary", Reason: "is required"}
	case r.Stance == "":
		return &ValidationError{Field: "stance", Reason: "is required"}
	case r.Role == "":
		return &ValidationError{Field: "role", Reason: "is required"}
	case r.Scores == nil:
		return &ValidationError{Field: "scores", Reason: "is required"}
	}
	return nil
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	fe := fieldErrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Report.")
	var reason string
	switch fe.Tag() {
	case "max":
		if fe.Kind() == reflect.Slice {
			reason = fmt.Sprintf("must have at most %s entries", fe.Param())
		} else if fe.Kind() == reflect.String {
			reason = fmt.Sprintf("must be at most %s characters", fe.Param())
		} else {
			reason = fmt.Sprintf("must be at most %s", fe.Param())
		}
	case "min":
		reason = fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		reason = fmt.Sprintf("must be one of [%s]", fe.Param())
	case "required":
		reason = "is required"
	default:
		reason = fmt.Sprintf("failed %q check", fe.Tag())
	}
	return &ValidationError{Field: field, Reason: reason}
}
