package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/team-mirai/mirai-gikai-sub000/cache"
	"github.com/team-mirai/mirai-gikai-sub000/models"
	"github.com/team-mirai/mirai-gikai-sub000/repository"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

// SeedFile is the YAML document describing demo respondents, bills and
// their interview configurations
type SeedFile struct {
	Users []SeedUser `yaml:"users" validate:"dive"`
	Bills []SeedBill `yaml:"bills" validate:"dive"`
}

type SeedUser struct {
	Email    string `yaml:"email" validate:"required,email"`
	Password string `yaml:"password" validate:"required"`
	FullName string `yaml:"full_name"`
}

type SeedBill struct {
	ID        string         `yaml:"id" validate:"required,uuid"`
	Title     string         `yaml:"title" validate:"required"`
	Summary   string         `yaml:"summary"`
	Content   string         `yaml:"content"`
	Interview *SeedInterview `yaml:"interview"`
}

type SeedInterview struct {
	Mode              string         `yaml:"mode" validate:"required,oneof=loop bulk"`
	Themes            []string       `yaml:"themes"`
	KnowledgeSource   string         `yaml:"knowledge_source"`
	EstimatedDuration *int           `yaml:"estimated_duration" validate:"omitempty,min=1"`
	ChatModel         *string        `yaml:"chat_model"`
	Questions         []SeedQuestion `yaml:"questions" validate:"dive"`
}

type SeedQuestion struct {
	ID            string   `yaml:"id" validate:"omitempty,uuid"`
	Question      string   `yaml:"question" validate:"required"`
	FollowUpGuide *string  `yaml:"follow_up_guide"`
	QuickReplies  []string `yaml:"quick_replies"`
	Order         int      `yaml:"order"`
}

// ParseSeed decodes and validates a seed document
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := requestValidator.Struct(seed); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	return &seed, nil
}

// LoadSeedFile reads and parses the seed document at path
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ToModels converts the interview section into rows for billID. Questions
// without an explicit order keep their position in the file.
func (i *SeedInterview) ToModels(billID string) (*models.InterviewConfig, []models.InterviewQuestion) {
	config := &models.InterviewConfig{
		BillID:            billID,
		Mode:              i.Mode,
		Themes:            datatypes.JSONSlice[string](i.Themes),
		KnowledgeSource:   i.KnowledgeSource,
		EstimatedDuration: i.EstimatedDuration,
		ChatModel:         i.ChatModel,
	}

	questions := make([]models.InterviewQuestion, 0, len(i.Questions))
	for idx, q := range i.Questions {
		order := q.Order
		if order == 0 {
			order = idx + 1
		}
		quickReplies := q.QuickReplies
		if quickReplies == nil {
			quickReplies = []string{}
		}
		questions = append(questions, models.InterviewQuestion{
			ID:            q.ID,
			Question:      q.Question,
			FollowUpGuide: q.FollowUpGuide,
			QuickReplies:  datatypes.JSONSlice[string](quickReplies),
			QuestionOrder: order,
		})
	}
	return config, questions
}

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	repo  *repository.GORMRepository
	cache cache.InterviewCache
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(repo *repository.GORMRepository, c cache.InterviewCache) *DatabaseSeeder {
	if c == nil {
		c = cache.NewInterviewCache(nil, 0)
	}
	return &DatabaseSeeder{repo: repo, cache: c}
}

// SeedDatabase applies seed idempotently: existing users are kept, bills and
// configurations are overwritten.
func (s *DatabaseSeeder) SeedDatabase(ctx context.Context, seed *SeedFile) error {
	for _, user := range seed.Users {
		if err := s.seedUser(ctx, user); err != nil {
			slog.Error("Failed to seed user", "email", user.Email, "error", err)
		}
	}

	for _, bill := range seed.Bills {
		if err := s.seedBill(ctx, bill); err != nil {
			return fmt.Errorf("failed to seed bill %s: %w", bill.ID, err)
		}
	}

	slog.Info("Database seeding completed successfully", "users", len(seed.Users), "bills", len(seed.Bills))
	return nil
}

// seedUser seeds a single user (idempotent)
func (s *DatabaseSeeder) seedUser(ctx context.Context, seed SeedUser) error {
	existing, err := s.repo.GetUserByEmail(ctx, seed.Email)
	if err != nil {
		return fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		slog.Info("User already exists, skipping", "email", seed.Email)
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.repo.CreateUser(ctx, &models.User{
		Email:    seed.Email,
		Password: string(hashedPassword),
		FullName: seed.FullName,
		Role:     respondentRole,
	})
}

func (s *DatabaseSeeder) seedBill(ctx context.Context, seed SeedBill) error {
	bill := &models.Bill{
		ID:      seed.ID,
		Title:   seed.Title,
		Summary: seed.Summary,
		Content: seed.Content,
	}
	if err := s.repo.UpsertBill(ctx, bill); err != nil {
		return err
	}

	if seed.Interview == nil {
		slog.Info("Bill seeded without interview", "bill_id", bill.ID)
		return nil
	}

	config, questions := seed.Interview.ToModels(bill.ID)
	if err := s.repo.ReplaceInterviewConfig(ctx, config, questions); err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, bill.ID, config.ID); err != nil {
		slog.Warn("Failed to invalidate cache", "error", err, "bill_id", bill.ID)
	}

	slog.Info("Bill seeded", "bill_id", bill.ID, "mode", config.Mode, "questions", len(questions))
	return nil
}
