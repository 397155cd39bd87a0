package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/team-mirai/mirai-gikai-sub000/models"
)

const DefaultTTL = 10 * time.Minute

// InterviewCache holds the rows the interview engine only reads: bills,
// interview configurations and question lists. A miss returns (nil, nil).
type InterviewCache interface {
	GetBill(ctx context.Context, billID string) (*models.Bill, error)
	SetBill(ctx context.Context, bill *models.Bill) error
	GetConfig(ctx context.Context, billID string) (*models.InterviewConfig, error)
	SetConfig(ctx context.Context, config *models.InterviewConfig) error
	GetQuestions(ctx context.Context, configID string) ([]models.InterviewQuestion, error)
	SetQuestions(ctx context.Context, configID string, questions []models.InterviewQuestion) error
	Invalidate(ctx context.Context, billID, configID string) error
	Ping(ctx context.Context) error
}

type interviewCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewInterviewCache returns a redis-backed cache. A nil client yields a cache
// that never hits.
func NewInterviewCache(client *redis.Client, ttl time.Duration) InterviewCache {
	if client == nil {
		return noopCache{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &interviewCache{
		client: client,
		ttl:    ttl,
	}
}

func billKey(billID string) string {
	return "bill:" + billID
}

func configKey(billID string) string {
	return "interview_config:" + billID
}

func questionsKey(configID string) string {
	return "interview_questions:" + configID
}

func (c *interviewCache) GetBill(ctx context.Context, billID string) (*models.Bill, error) {
	var bill models.Bill
	ok, err := c.get(ctx, billKey(billID), &bill)
	if err != nil || !ok {
		return nil, err
	}
	return &bill, nil
}

func (c *interviewCache) SetBill(ctx context.Context, bill *models.Bill) error {
	return c.set(ctx, billKey(bill.ID), bill)
}

func (c *interviewCache) GetConfig(ctx context.Context, billID string) (*models.InterviewConfig, error) {
	var config models.InterviewConfig
	ok, err := c.get(ctx, configKey(billID), &config)
	if err != nil || !ok {
		return nil, err
	}
	return &config, nil
}

func (c *interviewCache) SetConfig(ctx context.Context, config *models.InterviewConfig) error {
	return c.set(ctx, configKey(config.BillID), config)
}

func (c *interviewCache) GetQuestions(ctx context.Context, configID string) ([]models.InterviewQuestion, error) {
	var questions []models.InterviewQuestion
	ok, err := c.get(ctx, questionsKey(configID), &questions)
	if err != nil || !ok {
		return nil, err
	}
	return questions, nil
}

func (c *interviewCache) SetQuestions(ctx context.Context, configID string, questions []models.InterviewQuestion) error {
	return c.set(ctx, questionsKey(configID), questions)
}

func (c *interviewCache) Invalidate(ctx context.Context, billID, configID string) error {
	return c.client.Del(ctx, billKey(billID), configKey(billID), questionsKey(configID)).Err()
}

func (c *interviewCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *interviewCache) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// A stale encoding is treated as a miss and overwritten on the next set
		return false, nil
	}
	return true, nil
}

func (c *interviewCache) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

type noopCache struct{}

func (noopCache) GetBill(context.Context, string) (*models.Bill, error) {
	return nil, nil
}

func (noopCache) SetBill(context.Context, *models.Bill) error {
	return nil
}

func (noopCache) GetConfig(context.Context, string) (*models.InterviewConfig, error) {
	return nil, nil
}

func (noopCache) SetConfig(context.Context, *models.InterviewConfig) error {
	return nil
}

func (noopCache) GetQuestions(context.Context, string) ([]models.InterviewQuestion, error) {
	return nil, nil
}

func (noopCache) SetQuestions(context.Context, string, []models.InterviewQuestion) error {
	return nil
}

func (noopCache) Invalidate(context.Context, string, string) error {
	return nil
}

func (noopCache) Ping(context.Context) error {
	return nil
}
