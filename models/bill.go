package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/team-mirai/mirai-gikai-sub000/interview"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Bill is a piece of legislation respondents are interviewed about
type Bill struct {
	ID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Title     string         `gorm:"not null" json:"title"`
	Summary   string         `gorm:"type:text" json:"summary"`
	Content   string         `gorm:"type:text" json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	InterviewConfig *InterviewConfig `gorm:"foreignKey:BillID" json:"interview_config,omitempty"`
}

// Context renders the bill as the display text given to the interviewer
func (b *Bill) Context() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", b.Title)
	if s := strings.TrimSpace(b.Summary); s != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", s)
	}
	if c := strings.TrimSpace(b.Content); c != "" {
		fmt.Fprintf(&sb, "Content:\n%s\n", c)
	}
	return sb.String()
}

// InterviewConfig defines how the interview for one bill is run
type InterviewConfig struct {
	ID                string                      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	BillID            string                      `gorm:"type:uuid;not null;uniqueIndex" json:"bill_id"`
	Mode              string                      `gorm:"type:varchar(10);not null;default:'loop';check:mode IN ('loop', 'bulk')" json:"mode"`
	Themes            datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"themes"`
	KnowledgeSource   string                      `gorm:"type:text" json:"knowledge_source"`
	EstimatedDuration *int                        `json:"estimated_duration,omitempty"` // Minutes, NULL for no time budget
	ChatModel         *string                     `gorm:"size:100" json:"chat_model,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
	DeletedAt         gorm.DeletedAt              `gorm:"index" json:"-"`

	// Relationships
	Bill      Bill                `gorm:"foreignKey:BillID" json:"-"`
	Questions []InterviewQuestion `gorm:"foreignKey:InterviewConfigID" json:"questions,omitempty"`
}

// ToCore converts the row to the orchestrator's configuration view
func (c *InterviewConfig) ToCore() interview.Config {
	return interview.Config{
		ID:                c.ID,
		BillID:            c.BillID,
		Mode:              interview.Mode(c.Mode),
		Themes:            []string(c.Themes),
		KnowledgeSource:   c.KnowledgeSource,
		EstimatedDuration: c.EstimatedDuration,
		ChatModel:         c.ChatModel,
	}
}

// InterviewQuestion is one predefined question of a configuration
type InterviewQuestion struct {
	ID                string                      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InterviewConfigID string                      `gorm:"type:uuid;not null;index" json:"interview_config_id"`
	Question          string                      `gorm:"type:text;not null" json:"question"`
	FollowUpGuide     *string                     `gorm:"type:text" json:"follow_up_guide,omitempty"` // Used in loop mode only
	QuickReplies      datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"quick_replies"`
	QuestionOrder     int                         `gorm:"not null" json:"question_order"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
	DeletedAt         gorm.DeletedAt              `gorm:"index" json:"-"`
}

// ToCore converts the row to the orchestrator's question view
func (q *InterviewQuestion) ToCore() interview.Question {
	return interview.Question{
		ID:            q.ID,
		Text:          q.Question,
		FollowUpGuide: q.FollowUpGuide,
		QuickReplies:  []string(q.QuickReplies),
		Order:         q.QuestionOrder,
	}
}

// QuestionsToCore converts question rows, keeping their order
func QuestionsToCore(questions []InterviewQuestion) []interview.Question {
	out := make([]interview.Question, 0, len(questions))
	for i := range questions {
		out = append(out, questions[i].ToCore())
	}
	return out
}
