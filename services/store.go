package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/team-mirai/mirai-gikai-sub000/cache"
	"github.com/team-mirai/mirai-gikai-sub000/interview"
	"github.com/team-mirai/mirai-gikai-sub000/models"
)

// InterviewStore is the session, report and catalog persistence used by the
// interview services. *repository.GORMRepository implements it.
type InterviewStore interface {
	GetBill(ctx context.Context, billID string) (*models.Bill, error)
	GetInterviewConfigByBill(ctx context.Context, billID string) (*models.InterviewConfig, error)
	GetInterviewQuestions(ctx context.Context, configID string) ([]models.InterviewQuestion, error)

	CreateInterviewSession(ctx context.Context, session *models.InterviewSession) error
	GetInterviewSession(ctx context.Context, sessionID string) (*models.InterviewSession, error)
	FindCurrentSession(ctx context.Context, configID, userID string) (*models.InterviewSession, error)
	RestartSession(ctx context.Context, configID, userID string, now time.Time) (*models.InterviewSession, error)
	UpdateSessionRating(ctx context.Context, sessionID string, rating int) error

	CompleteInterview(ctx context.Context, report *models.InterviewReport, at time.Time) error
	GetInterviewReport(ctx context.Context, sessionID string) (*models.InterviewReport, error)
}

// MessageStore is the append-only transcript. *repository.ConversationRepository
// implements it.
type MessageStore interface {
	AppendMessage(ctx context.Context, message *models.InterviewMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]models.InterviewMessage, error)
}

// Catalog reads bills, configurations and questions through the cache
type Catalog struct {
	store InterviewStore
	cache cache.InterviewCache
}

func NewCatalog(store InterviewStore, c cache.InterviewCache) *Catalog {
	if c == nil {
		c = cache.NewInterviewCache(nil, 0)
	}
	return &Catalog{store: store, cache: c}
}

// LoadedInterview is everything the orchestrator reads about one bill
type LoadedInterview struct {
	Bill      *models.Bill
	Config    *models.InterviewConfig
	Questions []models.InterviewQuestion
}

// CoreConfig returns the configuration in the core's terms
func (l *LoadedInterview) CoreConfig() interview.Config {
	return l.Config.ToCore()
}

// CoreQuestions returns the questions in the core's terms
func (l *LoadedInterview) CoreQuestions() []interview.Question {
	return models.QuestionsToCore(l.Questions)
}

// Load returns the bill, its interview configuration and questions. A bill
// without a configuration yields ErrConfigurationMissing.
func (c *Catalog) Load(ctx context.Context, billID string) (*LoadedInterview, error) {
	config, err := c.config(ctx, billID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, fmt.Errorf("%w: bill %s", ErrConfigurationMissing, billID)
	}

	bill, err := c.bill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, fmt.Errorf("%w: %s", ErrBillNotFound, billID)
	}

	questions, err := c.questions(ctx, config.ID)
	if err != nil {
		return nil, err
	}

	return &LoadedInterview{Bill: bill, Config: config, Questions: questions}, nil
}

func (c *Catalog) config(ctx context.Context, billID string) (*models.InterviewConfig, error) {
	cached, err := c.cache.GetConfig(ctx, billID)
	if err != nil {
		slog.Warn("Cache read failed", "error", err, "bill_id", billID)
	}
	if cached != nil {
		return cached, nil
	}

	config, err := c.store.GetInterviewConfigByBill(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to get interview config: %w", err)
	}
	if config != nil {
		if err := c.cache.SetConfig(ctx, config); err != nil {
			slog.Warn("Cache write failed", "error", err, "bill_id", billID)
		}
	}
	return config, nil
}

func (c *Catalog) bill(ctx context.Context, billID string) (*models.Bill, error) {
	cached, err := c.cache.GetBill(ctx, billID)
	if err != nil {
		slog.Warn("Cache read failed", "error", err, "bill_id", billID)
	}
	if cached != nil {
		return cached, nil
	}

	bill, err := c.store.GetBill(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	if bill != nil {
		if err := c.cache.SetBill(ctx, bill); err != nil {
			slog.Warn("Cache write failed", "error", err, "bill_id", billID)
		}
	}
	return bill, nil
}

func (c *Catalog) questions(ctx context.Context, configID string) ([]models.InterviewQuestion, error) {
	cached, err := c.cache.GetQuestions(ctx, configID)
	if err != nil {
		slog.Warn("Cache read failed", "error", err, "config_id", configID)
	}
	if cached != nil {
		return cached, nil
	}

	questions, err := c.store.GetInterviewQuestions(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("failed to get interview questions: %w", err)
	}
	if err := c.cache.SetQuestions(ctx, configID, questions); err != nil {
		slog.Warn("Cache write failed", "error", err, "config_id", configID)
	}
	return questions, nil
}
