package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/team-mirai/mirai-gikai-sub000/models"
	"gorm.io/gorm"
)

// ConversationRepository stores interview transcripts. Messages are
// append-only: there is no update or delete.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// AppendMessage saves a message to the end of a session's transcript
func (r *ConversationRepository) AppendMessage(ctx context.Context, message *models.InterviewMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		slog.Error("Failed to save message", "error", err, "session_id", message.InterviewSessionID)
		return fmt.Errorf("failed to save message: %w", err)
	}

	slog.Info("Message saved", "message_id", message.ID, "session_id", message.InterviewSessionID, "role", message.Role)
	return nil
}

// ListMessages retrieves all messages for a session in creation order
func (r *ConversationRepository) ListMessages(ctx context.Context, sessionID string) ([]models.InterviewMessage, error) {
	var messages []models.InterviewMessage

	if err := transcriptQuery(r.db.WithContext(ctx), sessionID).Find(&messages).Error; err != nil {
		slog.Error("Failed to get messages by session", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to get messages by session: %w", err)
	}

	return messages, nil
}

// transcriptQuery selects a session's messages in insertion order. Rows
// written within the same microsecond fall back to the insert sequence.
func transcriptQuery(db *gorm.DB, sessionID string) *gorm.DB {
	return db.
		Where("interview_session_id = ?", sessionID).
		Order("created_at ASC").
		Order("seq ASC")
}
