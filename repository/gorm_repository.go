package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/team-mirai/mirai-gikai-sub000/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.PermanentToken{},
		&models.Bill{},
		&models.InterviewConfig{},
		&models.InterviewQuestion{},
		&models.InterviewSession{},
		&models.InterviewMessage{},
		&models.InterviewReport{},
		&models.ReportScore{},
	)
}

// User operations
func (r *GORMRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		slog.Error("Failed to create user", "error", err)
		return err
	}
	slog.Info("User created", "user_id", user.ID, "email", user.Email)
	return nil
}

func (r *GORMRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get user by email", "error", err, "email", email)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get user by ID", "error", err, "user_id", id)
		return nil, err
	}
	return &user, nil
}

// Token operations
func (r *GORMRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token = ? AND expires_at > ?", token, time.Now()).First(&refreshToken).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get refresh token", "error", err)
		return nil, err
	}
	return &refreshToken, nil
}

func (r *GORMRepository) CreatePermanentToken(ctx context.Context, token *models.PermanentToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create permanent token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) GetPermanentToken(ctx context.Context, token string) (*models.PermanentToken, error) {
	var permanentToken models.PermanentToken
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&permanentToken).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get permanent token", "error", err)
		return nil, err
	}
	return &permanentToken, nil
}

func (r *GORMRepository) DeleteAllUserTokens(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete user refresh tokens", "error", err, "user_id", userID)
		return err
	}
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.PermanentToken{}).Error; err != nil {
		slog.Error("Failed to delete user permanent tokens", "error", err, "user_id", userID)
		return err
	}
	return nil
}

// Bill and configuration operations. These rows are read-only for the interview engine.

func (r *GORMRepository) GetBill(ctx context.Context, billID string) (*models.Bill, error) {
	var bill models.Bill
	if err := r.db.WithContext(ctx).Where("id = ?", billID).First(&bill).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get bill", "error", err, "bill_id", billID)
		return nil, err
	}
	return &bill, nil
}

func (r *GORMRepository) GetInterviewConfigByBill(ctx context.Context, billID string) (*models.InterviewConfig, error) {
	var config models.InterviewConfig
	if err := r.db.WithContext(ctx).Where("bill_id = ?", billID).First(&config).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get interview config", "error", err, "bill_id", billID)
		return nil, err
	}
	return &config, nil
}

func (r *GORMRepository) GetInterviewQuestions(ctx context.Context, configID string) ([]models.InterviewQuestion, error) {
	var questions []models.InterviewQuestion
	err := r.db.WithContext(ctx).
		Where("interview_config_id = ?", configID).
		Order("question_order ASC").
		Find(&questions).Error
	if err != nil {
		slog.Error("Failed to get interview questions", "error", err, "config_id", configID)
		return nil, err
	}
	return questions, nil
}

// Session operations

func (r *GORMRepository) CreateInterviewSession(ctx context.Context, session *models.InterviewSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		slog.Error("Failed to create interview session", "error", err)
		return err
	}
	slog.Info("Interview session created", "session_id", session.ID, "user_id", session.UserID)
	return nil
}

// GetInterviewSession gets an interview session by ID without user check
func (r *GORMRepository) GetInterviewSession(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	var session models.InterviewSession
	err := r.db.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get interview session", "error", err, "session_id", sessionID)
		return nil, err
	}
	return &session, nil
}

// FindCurrentSession returns the latest session that has not been archived.
// A completed session is returned too, so a finished interview stays finished
// until the respondent restarts it.
func (r *GORMRepository) FindCurrentSession(ctx context.Context, configID, userID string) (*models.InterviewSession, error) {
	var session models.InterviewSession
	err := r.db.WithContext(ctx).
		Where("interview_config_id = ? AND user_id = ?", configID, userID).
		Where("archived_at IS NULL").
		Order("started_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to find current session", "error", err, "config_id", configID, "user_id", userID)
		return nil, err
	}
	return &session, nil
}

// RestartSession archives every non-archived session of the pair and creates
// a fresh one, in one transaction.
func (r *GORMRepository) RestartSession(ctx context.Context, configID, userID string, now time.Time) (*models.InterviewSession, error) {
	session := &models.InterviewSession{
		InterviewConfigID: configID,
		UserID:            userID,
		StartedAt:         now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.InterviewSession{}).
			Where("interview_config_id = ? AND user_id = ? AND archived_at IS NULL", configID, userID).
			Update("archived_at", now).Error; err != nil {
			return fmt.Errorf("failed to archive sessions: %w", err)
		}
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to restart session", "error", err, "config_id", configID, "user_id", userID)
		return nil, err
	}

	slog.Info("Interview session restarted", "session_id", session.ID, "user_id", userID)
	return session, nil
}

// UpdateSessionRating stores the respondent's 1-5 rating
func (r *GORMRepository) UpdateSessionRating(ctx context.Context, sessionID string, rating int) error {
	err := r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("id = ?", sessionID).
		Update("rating", rating).Error
	if err != nil {
		slog.Error("Failed to update session rating", "error", err, "session_id", sessionID)
		return err
	}
	return nil
}

// Report operations

// CompleteInterview upserts the report and its scores and marks the session
// completed, in one transaction.
func (r *GORMRepository) CompleteInterview(ctx context.Context, report *models.InterviewReport, at time.Time) error {
	scores := report.Scores

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Scores").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "interview_session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"summary", "stance", "role", "role_description", "role_title", "opinions", "score_reasoning", "updated_at"}),
		}).Create(report).Error; err != nil {
			return fmt.Errorf("failed to upsert report: %w", err)
		}

		// On conflict the returned id is the existing row's
		for i := range scores {
			scores[i].InterviewReportID = report.ID
		}
		if len(scores) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "interview_report_id"}, {Name: "metric"}},
				DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
			}).Create(&scores).Error; err != nil {
				return fmt.Errorf("failed to upsert report scores: %w", err)
			}
		}

		if err := tx.Model(&models.InterviewSession{}).
			Where("id = ? AND completed_at IS NULL", report.InterviewSessionID).
			Update("completed_at", at).Error; err != nil {
			return fmt.Errorf("failed to mark session completed: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to complete interview", "error", err, "session_id", report.InterviewSessionID)
		return err
	}

	slog.Info("Interview completed", "session_id", report.InterviewSessionID, "report_id", report.ID)
	return nil
}

func (r *GORMRepository) GetInterviewReport(ctx context.Context, sessionID string) (*models.InterviewReport, error) {
	var report models.InterviewReport
	err := r.db.WithContext(ctx).Where("interview_session_id = ?", sessionID).First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get interview report", "error", err, "session_id", sessionID)
		return nil, err
	}
	return &report, nil
}

// Seeding operations

// UpsertBill creates or updates a bill by primary key
func (r *GORMRepository) UpsertBill(ctx context.Context, bill *models.Bill) error {
	if err := r.db.WithContext(ctx).Save(bill).Error; err != nil {
		slog.Error("Failed to upsert bill", "error", err, "bill_id", bill.ID)
		return err
	}
	return nil
}

// ReplaceInterviewConfig stores config and replaces its question list
func (r *GORMRepository) ReplaceInterviewConfig(ctx context.Context, config *models.InterviewConfig, questions []models.InterviewQuestion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Questions", "Bill").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bill_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"mode", "themes", "knowledge_source", "estimated_duration", "chat_model", "updated_at"}),
		}).Create(config).Error; err != nil {
			return fmt.Errorf("failed to upsert interview config: %w", err)
		}
		if err := tx.Unscoped().Where("interview_config_id = ?", config.ID).Delete(&models.InterviewQuestion{}).Error; err != nil {
			return fmt.Errorf("failed to clear interview questions: %w", err)
		}
		for i := range questions {
			questions[i].InterviewConfigID = config.ID
		}
		if len(questions) > 0 {
			if err := tx.Create(&questions).Error; err != nil {
				return fmt.Errorf("failed to create interview questions: %w", err)
			}
		}
		return nil
	})
}
