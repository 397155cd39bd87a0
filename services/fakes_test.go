package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/team-mirai/mirai-gikai-sub000/interview"
	"github.com/team-mirai/mirai-gikai-sub000/models"
)

// memoryStore is an in-memory InterviewStore and MessageStore
type memoryStore struct {
	mu        sync.Mutex
	bills     map[string]*models.Bill
	configs   map[string]*models.InterviewConfig
	questions map[string][]models.InterviewQuestion
	sessions  map[string]*models.InterviewSession
	messages  map[string][]models.InterviewMessage
	reports   map[string]*models.InterviewReport
	nextID    int

	// failAppend, when set, can reject a message before it is stored
	failAppend func(*models.InterviewMessage) error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		bills:     make(map[string]*models.Bill),
		configs:   make(map[string]*models.InterviewConfig),
		questions: make(map[string][]models.InterviewQuestion),
		sessions:  make(map[string]*models.InterviewSession),
		messages:  make(map[string][]models.InterviewMessage),
		reports:   make(map[string]*models.InterviewReport),
	}
}

func (m *memoryStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// addInterview registers a bill with a configuration of mode and one question
// per entry of questionIDs.
func (m *memoryStore) addInterview(billID, mode string, questionIDs ...string) *models.InterviewConfig {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bills[billID] = &models.Bill{ID: billID, Title: "Bill " + billID, Summary: "summary"}
	config := &models.InterviewConfig{ID: "config-" + billID, BillID: billID, Mode: mode}
	m.configs[config.ID] = config

	var questions []models.InterviewQuestion
	for i, qid := range questionIDs {
		questions = append(questions, models.InterviewQuestion{
			ID:                qid,
			InterviewConfigID: config.ID,
			Question:          "Question " + qid,
			QuickReplies:      []string{"yes", "no"},
			QuestionOrder:     i + 1,
		})
	}
	m.questions[config.ID] = questions
	return config
}

func (m *memoryStore) GetBill(ctx context.Context, billID string) (*models.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bills[billID], nil
}

func (m *memoryStore) GetInterviewConfigByBill(ctx context.Context, billID string) (*models.InterviewConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.configs {
		if c.BillID == billID {
			return c, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) GetInterviewQuestions(ctx context.Context, configID string) ([]models.InterviewQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.questions[configID], nil
}

func (m *memoryStore) CreateInterviewSession(ctx context.Context, session *models.InterviewSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == "" {
		session.ID = m.id("session")
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *memoryStore) GetInterviewSession(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID], nil
}

func (m *memoryStore) FindCurrentSession(ctx context.Context, configID, userID string) (*models.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current *models.InterviewSession
	for _, s := range m.sessions {
		if s.InterviewConfigID != configID || s.UserID != userID || s.ArchivedAt != nil {
			continue
		}
		if current == nil || s.StartedAt.After(current.StartedAt) {
			current = s
		}
	}
	return current, nil
}

func (m *memoryStore) RestartSession(ctx context.Context, configID, userID string, now time.Time) (*models.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.InterviewConfigID == configID && s.UserID == userID && s.ArchivedAt == nil {
			archived := now
			s.ArchivedAt = &archived
		}
	}
	session := &models.InterviewSession{
		ID:                m.id("session"),
		InterviewConfigID: configID,
		UserID:            userID,
		StartedAt:         now,
	}
	m.sessions[session.ID] = session
	return session, nil
}

func (m *memoryStore) UpdateSessionRating(ctx context.Context, sessionID string, rating int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return errors.New("session not found")
	}
	s.Rating = &rating
	return nil
}

func (m *memoryStore) CompleteInterview(ctx context.Context, report *models.InterviewReport, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[report.InterviewSessionID]
	if !ok {
		return errors.New("session not found")
	}
	s.CompletedAt = &at
	m.reports[report.InterviewSessionID] = report
	return nil
}

func (m *memoryStore) GetInterviewReport(ctx context.Context, sessionID string) (*models.InterviewReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reports[sessionID], nil
}

func (m *memoryStore) AppendMessage(ctx context.Context, message *models.InterviewMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend != nil {
		if err := m.failAppend(message); err != nil {
			return err
		}
	}
	if message.ID == "" {
		message.ID = m.id("message")
	}
	message.CreatedAt = time.Now()
	m.messages[message.InterviewSessionID] = append(m.messages[message.InterviewSessionID], *message)
	return nil
}

func (m *memoryStore) ListMessages(ctx context.Context, sessionID string) ([]models.InterviewMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.InterviewMessage, len(m.messages[sessionID]))
	copy(out, m.messages[sessionID])
	return out, nil
}

func (m *memoryStore) messageCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages[sessionID])
}

// scriptedGenerator replays one response per call. An entry with a non-nil
// error fails that call.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses []scriptedResponse
	requests  []GenerateRequest
}

type scriptedResponse struct {
	text string
	err  error
}

func (g *scriptedGenerator) add(text string) *scriptedGenerator {
	g.responses = append(g.responses, scriptedResponse{text: text})
	return g
}

func (g *scriptedGenerator) fail(err error) *scriptedGenerator {
	g.responses = append(g.responses, scriptedResponse{err: err})
	return g
}

func (g *scriptedGenerator) GenerateStream(ctx context.Context, req GenerateRequest, onChunk func(string) error) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	if len(g.responses) == 0 {
		g.mu.Unlock()
		return "", errors.New("no scripted response")
	}
	next := g.responses[0]
	g.responses = g.responses[1:]
	g.mu.Unlock()

	if next.err != nil {
		return "", next.err
	}

	// Stream in two halves so partial text is observable
	half := len(next.text) / 2
	for _, chunk := range []string{next.text[:half], next.text[half:]} {
		if chunk == "" {
			continue
		}
		if err := onChunk(chunk); err != nil {
			return "", err
		}
	}
	return next.text, nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *scriptedGenerator) lastRequest() GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

const validReportJSON = `{"summary":"Supports remote work with safeguards","stance":"for","role":"work_related",` +
	`"role_description":"Office worker","role_title":"会社員",` +
	`"opinions":[{"title":"Commute","content":"Less commuting"}],` +
	`"scores":{"total":72.4,"clarity":80,"specificity":60,"impact":70,"constructiveness":75,"reasoning":"clear"}}`

func askEnvelope(text, questionID string) string {
	return fmt.Sprintf(`{"text":%q,"question_id":%q,"topic_title":"Topic %s","next_stage":"chat"}`, text, questionID, questionID)
}

func summaryEnvelope(text, report string) string {
	return fmt.Sprintf(`{"text":%q,"next_stage":"summary","report":%s}`, text, report)
}

// againstReportJSON is validReportJSON with the stance flipped
var againstReportJSON = strings.Replace(validReportJSON, `"stance":"for"`, `"stance":"against"`, 1)

func stageEnvelope(text string, stage interview.Stage, report string) string {
	return fmt.Sprintf(`{"text":%q,"next_stage":%q,"report":%s}`, text, stage, report)
}
