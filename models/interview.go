package models

import (
	"time"

	"github.com/team-mirai/mirai-gikai-sub000/interview"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InterviewSession records one respondent's attempt at a bill's interview.
// The partial unique index allows at most one active session per (config, user).
type InterviewSession struct {
	ID                string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InterviewConfigID string         `gorm:"type:uuid;not null;uniqueIndex:idx_active_session,where:completed_at IS NULL AND archived_at IS NULL AND deleted_at IS NULL" json:"interview_config_id"`
	UserID            string         `gorm:"type:uuid;not null;uniqueIndex:idx_active_session,where:completed_at IS NULL AND archived_at IS NULL AND deleted_at IS NULL" json:"user_id"`
	StartedAt         time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	ArchivedAt        *time.Time     `json:"archived_at,omitempty"`
	Rating            *int           `gorm:"check:rating IS NULL OR rating BETWEEN 1 AND 5" json:"rating,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	InterviewConfig InterviewConfig    `gorm:"foreignKey:InterviewConfigID" json:"-"`
	Messages        []InterviewMessage `gorm:"foreignKey:InterviewSessionID" json:"messages,omitempty"`
	Report          *InterviewReport   `gorm:"foreignKey:InterviewSessionID" json:"report,omitempty"`
}

// IsActive reports whether the session is neither completed nor archived
func (s *InterviewSession) IsActive() bool {
	return s.CompletedAt == nil && s.ArchivedAt == nil
}

// Record returns the ownership-relevant view of the session
func (s *InterviewSession) Record() *interview.SessionRecord {
	if s == nil {
		return nil
	}
	return &interview.SessionRecord{ID: s.ID, UserID: s.UserID}
}

// InterviewReport stores the confirmed opinion report of a session
type InterviewReport struct {
	ID                 string                                 `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InterviewSessionID string                                 `gorm:"type:uuid;not null;uniqueIndex" json:"interview_session_id"`
	Summary            string                                 `gorm:"type:text;not null" json:"summary"`
	Stance             string                                 `gorm:"type:varchar(10);check:stance IN ('for', 'against', 'neutral')" json:"stance"`
	Role               string                                 `gorm:"type:varchar(30);check:role IN ('subject_expert', 'work_related', 'daily_life_affected', 'general_citizen')" json:"role"`
	RoleDescription    string                                 `gorm:"type:text" json:"role_description"`
	RoleTitle          string                                 `gorm:"size:10" json:"role_title"`
	Opinions           datatypes.JSONSlice[interview.Opinion] `gorm:"type:jsonb" json:"opinions"`
	ScoreReasoning     string                                 `gorm:"type:text" json:"-"`
	CreatedAt          time.Time                              `json:"created_at"`
	UpdatedAt          time.Time                              `json:"updated_at"`
	DeletedAt          gorm.DeletedAt                         `gorm:"index" json:"-"`

	// Relationships
	Scores []ReportScore `gorm:"foreignKey:InterviewReportID" json:"-"`
}

// NewInterviewReport maps a validated report onto a row for sessionID
func NewInterviewReport(sessionID string, r *interview.Report) *InterviewReport {
	row := &InterviewReport{
		InterviewSessionID: sessionID,
		Summary:            r.Summary,
		Stance:             string(r.Stance),
		Role:               string(r.Role),
		RoleDescription:    r.RoleDescription,
		RoleTitle:          r.RoleTitle,
		Opinions:           datatypes.JSONSlice[interview.Opinion](r.Opinions),
	}
	if r.Scores != nil {
		row.ScoreReasoning = r.Scores.Reasoning
		for _, metric := range interview.ScoreMetrics {
			row.Scores = append(row.Scores, ReportScore{
				Metric: metric,
				Score:  r.Scores.ByMetric()[metric],
			})
		}
	}
	return row
}

// View returns the respondent-facing form of the report, without scores
func (r *InterviewReport) View() *interview.ReportView {
	opinions := []interview.Opinion(r.Opinions)
	if opinions == nil {
		opinions = []interview.Opinion{}
	}
	return &interview.ReportView{
		Summary:         r.Summary,
		Stance:          interview.Stance(r.Stance),
		Role:            interview.RespondentRole(r.Role),
		RoleDescription: r.RoleDescription,
		RoleTitle:       r.RoleTitle,
		Opinions:        opinions,
	}
}

// ReportScore is a key-value table of curation scores for a report
// This allows new metrics without schema changes
type ReportScore struct {
	ID                string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InterviewReportID string         `gorm:"type:uuid;not null;uniqueIndex:idx_report_metric" json:"interview_report_id"`
	Metric            string         `gorm:"not null;uniqueIndex:idx_report_metric" json:"metric"` // e.g., "total", "clarity", "impact"
	Score             int            `gorm:"not null;check:score BETWEEN 0 AND 100" json:"score"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}
