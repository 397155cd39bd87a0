package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/team-mirai/mirai-gikai-sub000/interview"
	"gorm.io/gorm"
)

// InterviewMessage is one append-only turn of an interview transcript.
// Assistant content is a JSON envelope; older rows may be plain text.
type InterviewMessage struct {
	ID                 string         `json:"id" gorm:"type:uuid;primaryKey"`
	InterviewSessionID string         `json:"interview_session_id" gorm:"type:uuid;not null;index"`
	Role               string         `json:"role" gorm:"type:varchar(20);not null;check:role IN ('user', 'assistant')"`
	Content            string         `json:"content" gorm:"type:text;not null"`
	CreatedAt          time.Time      `json:"created_at" gorm:"not null;default:now();index"`
	// Seq breaks created_at ties; it is assigned by the database on insert
	Seq       int64          `json:"-" gorm:"type:bigserial;not null;<-:false"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate hook to set the ID if not provided
func (m *InterviewMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Stored returns the core's view of the row
func (m *InterviewMessage) Stored() interview.StoredMessage {
	return interview.StoredMessage{Role: interview.Role(m.Role), Content: m.Content}
}

// MessagesToStored converts rows in order
func MessagesToStored(messages []InterviewMessage) []interview.StoredMessage {
	out := make([]interview.StoredMessage, 0, len(messages))
	for i := range messages {
		out = append(out, messages[i].Stored())
	}
	return out
}
