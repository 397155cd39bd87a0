package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/team-mirai/mirai-gikai-sub000/interview"
	"github.com/team-mirai/mirai-gikai-sub000/models"
)

// ChatRequest is one respondent turn against a bill's interview
type ChatRequest struct {
	BillID string
	Auth   interview.AuthResult
	Text   string
	// IsRetry marks a resubmission after a failed generation; the user text
	// was already stored by the first attempt.
	IsRetry bool
}

// Delta is one streamed fragment of the interviewer's turn
type Delta struct {
	Chunk string `json:"chunk"`
	// Text is the interviewer text decoded from the stream so far
	Text string `json:"text"`
}

// DeltaSink receives streamed fragments. Returning an error aborts the turn.
type DeltaSink func(Delta) error

// TurnResult describes the interview after a turn
type TurnResult struct {
	SessionID        string                    `json:"session_id"`
	Message          *interview.DecodedMessage `json:"message,omitempty"`
	Stage            interview.Stage           `json:"stage"`
	Progress         *interview.ProgressState  `json:"progress"`
	RemainingMinutes *int                      `json:"remaining_minutes"`
	TimeUp           bool                      `json:"time_up"`
	// NoOp is set when the interview had already finished and nothing ran
	NoOp bool `json:"no_op,omitempty"`
}

// SessionState is the cold-load view of a respondent's current session
type SessionState struct {
	SessionID        string                     `json:"session_id,omitempty"`
	Messages         []interview.DecodedMessage `json:"messages"`
	Stage            interview.Stage            `json:"stage"`
	Progress         *interview.ProgressState   `json:"progress"`
	RemainingMinutes *int                       `json:"remaining_minutes"`
	TimeUp           bool                       `json:"time_up"`
	Completed        bool                       `json:"completed"`
}

// ChatService runs interview turns
type ChatService struct {
	catalog   *Catalog
	store     InterviewStore
	messages  MessageStore
	generator Generator
	monitor   *InflightMonitor
	timeout   time.Duration
	now       func() time.Time
}

func NewChatService(catalog *Catalog, store InterviewStore, messages MessageStore, generator Generator, monitor *InflightMonitor, timeout time.Duration) *ChatService {
	if monitor == nil {
		monitor = NewInflightMonitor(0)
	}
	return &ChatService{
		catalog:   catalog,
		store:     store,
		messages:  messages,
		generator: generator,
		monitor:   monitor,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Chat runs one turn: it stores the respondent's text, asks the generator
// for the interviewer's reply while streaming it to sink, and stores the
// reply once the stream completes. A failed generation, or a reply that could
// not be stored, returns a *GenerationError so the turn can be retried.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest, sink DeltaSink) (*TurnResult, error) {
	if !req.Auth.Authenticated() {
		return nil, denialError(interview.Resolve(req.Auth, nil))
	}

	loaded, err := s.catalog.Load(ctx, req.BillID)
	if err != nil {
		return nil, err
	}
	config := loaded.CoreConfig()
	strategy, err := interview.StrategyFor(config.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to select strategy for config %s: %w", config.ID, err)
	}

	session, err := s.currentOrCreate(ctx, config.ID, req.Auth.UserID)
	if err != nil {
		return nil, err
	}
	if res := interview.Resolve(req.Auth, session.Record()); !res.Authorized {
		return nil, denialError(res)
	}

	history, err := s.history(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	stage := interview.CurrentStage(history)
	if stage.IsTerminal() || !session.IsActive() {
		slog.Info("Ignoring turn on finished interview", "session_id", session.ID, "stage", stage)
		result := s.result(session, loaded, history, nil)
		result.NoOp = true
		return result, nil
	}

	if !req.IsRetry && strings.TrimSpace(req.Text) != "" {
		userMessage := &models.InterviewMessage{
			InterviewSessionID: session.ID,
			Role:               string(interview.RoleUser),
			Content:            req.Text,
		}
		if err := s.messages.AppendMessage(ctx, userMessage); err != nil {
			return nil, err
		}
		history = append(history, interview.DecodeMessage(userMessage.Stored()))
	}

	questions := loaded.CoreQuestions()
	asked := interview.AskedQuestionIDs(history)
	var nextQuestionID *string
	if stage == interview.StageChat {
		nextQuestionID = strategy.NextQuestionID(history, questions)
	}
	remaining := interview.RemainingMinutes(config.EstimatedDuration, session.StartedAt, s.now())

	genReq := GenerateRequest{
		SystemPrompt: interview.BuildPrompt(strategy, interview.PromptParams{
			BillContext:      loaded.Bill.Context(),
			Config:           config,
			Questions:        questions,
			NextQuestionID:   nextQuestionID,
			Stage:            stage,
			AskedIDs:         asked,
			RemainingMinutes: remaining,
		}),
		Conversation: conversationTurns(history),
		Schema:       interview.SchemaFor(stage),
	}
	if config.ChatModel != nil {
		genReq.Model = *config.ChatModel
	}

	full, overlapped, err := s.generate(ctx, session.ID, genReq, sink)
	if err != nil {
		slog.Error("Generation failed", "error", err, "session_id", session.ID, "stage", stage, "is_retry", req.IsRetry, "overlapped", overlapped)
		return nil, &GenerationError{Err: err}
	}

	reply := assistantReply(interview.ParseGeneratorOutput(full), stage, questions, nextQuestionID, session.ID)
	content, err := interview.Encode(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to encode assistant message: %w", err)
	}
	assistantMessage := &models.InterviewMessage{
		InterviewSessionID: session.ID,
		Role:               string(interview.RoleAssistant),
		Content:            content,
	}
	if err := s.messages.AppendMessage(ctx, assistantMessage); err != nil {
		slog.Error("Failed to store interviewer reply", "error", err, "session_id", session.ID)
		return nil, &GenerationError{Err: err}
	}

	decoded := interview.DecodeMessage(assistantMessage.Stored())
	history = append(history, decoded)

	slog.Info("Interview turn completed",
		"session_id", session.ID,
		"from_stage", stage,
		"to_stage", reply.NextStage,
		"has_report", reply.Report != nil,
		"overlapped", overlapped)

	return s.result(session, loaded, history, &decoded), nil
}

// State returns the respondent's current session for billID without
// creating one.
func (s *ChatService) State(ctx context.Context, billID string, auth interview.AuthResult) (*SessionState, error) {
	if !auth.Authenticated() {
		return nil, denialError(interview.Resolve(auth, nil))
	}

	loaded, err := s.catalog.Load(ctx, billID)
	if err != nil {
		return nil, err
	}

	session, err := s.store.FindCurrentSession(ctx, loaded.Config.ID, auth.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find current session: %w", err)
	}
	if session == nil {
		return &SessionState{
			Messages: []interview.DecodedMessage{},
			Stage:    interview.StageChat,
			Progress: interview.Progress(len(loaded.Questions), interview.StageChat, nil),
		}, nil
	}
	if res := interview.Resolve(auth, session.Record()); !res.Authorized {
		return nil, denialError(res)
	}

	history, err := s.history(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return s.state(session, loaded, history), nil
}

// Restart archives the respondent's sessions for billID and opens a new one
func (s *ChatService) Restart(ctx context.Context, billID string, auth interview.AuthResult) (*SessionState, error) {
	if !auth.Authenticated() {
		return nil, denialError(interview.Resolve(auth, nil))
	}

	loaded, err := s.catalog.Load(ctx, billID)
	if err != nil {
		return nil, err
	}

	session, err := s.store.RestartSession(ctx, loaded.Config.ID, auth.UserID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to restart session: %w", err)
	}
	return s.state(session, loaded, nil), nil
}

func (s *ChatService) currentOrCreate(ctx context.Context, configID, userID string) (*models.InterviewSession, error) {
	session, err := s.store.FindCurrentSession(ctx, configID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find current session: %w", err)
	}
	if session != nil {
		return session, nil
	}

	session = &models.InterviewSession{
		InterviewConfigID: configID,
		UserID:            userID,
		StartedAt:         s.now(),
	}
	if err := s.store.CreateInterviewSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *ChatService) history(ctx context.Context, sessionID string) ([]interview.DecodedMessage, error) {
	rows, err := s.messages.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return interview.DecodeHistory(models.MessagesToStored(rows)), nil
}

// generate streams one generator call, forwarding fragments and the decoded
// text so far to sink. overlapped is set when another turn on the session was
// still generating.
func (s *ChatService) generate(ctx context.Context, sessionID string, req GenerateRequest, sink DeltaSink) (full string, overlapped bool, err error) {
	done, overlapped := s.monitor.Begin(sessionID)
	defer done()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var buffered strings.Builder
	full, err = s.generator.GenerateStream(ctx, req, func(chunk string) error {
		buffered.WriteString(chunk)
		if sink == nil {
			return nil
		}
		text, _ := interview.PartialText(buffered.String())
		return sink(Delta{Chunk: chunk, Text: text})
	})
	return full, overlapped, err
}

func (s *ChatService) result(session *models.InterviewSession, loaded *LoadedInterview, history []interview.DecodedMessage, message *interview.DecodedMessage) *TurnResult {
	stage := interview.CurrentStage(history)
	remaining := interview.RemainingMinutes(loaded.Config.EstimatedDuration, session.StartedAt, s.now())
	return &TurnResult{
		SessionID:        session.ID,
		Message:          message,
		Stage:            stage,
		Progress:         interview.Progress(len(loaded.Questions), stage, history),
		RemainingMinutes: remaining,
		TimeUp:           interview.TimeUp(remaining),
	}
}

func (s *ChatService) state(session *models.InterviewSession, loaded *LoadedInterview, history []interview.DecodedMessage) *SessionState {
	if history == nil {
		history = []interview.DecodedMessage{}
	}
	result := s.result(session, loaded, history, nil)
	return &SessionState{
		SessionID:        session.ID,
		Messages:         history,
		Stage:            result.Stage,
		Progress:         result.Progress,
		RemainingMinutes: result.RemainingMinutes,
		TimeUp:           result.TimeUp,
		Completed:        session.CompletedAt != nil,
	}
}

// conversationTurns renders the history as the generator sees it: the
// interviewer's displayed text and the respondent's raw text.
func conversationTurns(history []interview.DecodedMessage) []Turn {
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, Turn{Role: m.Role, Text: m.Text})
	}
	return turns
}

// assistantReply turns the generator output into the stored envelope. The
// generator's next_stage is adopted when it names a known stage. A report is
// kept only when it validated and the turn touches the summary: it started
// there, or it ends in summary or summary_complete. Quick replies come from
// the configured question, and only when it is the forced one.
func assistantReply(out interview.GeneratorOutput, stage interview.Stage, questions []interview.Question, forced *string, sessionID string) interview.EncodeInput {
	reply := interview.EncodeInput{
		Text:       out.Text,
		TopicTitle: out.TopicTitle,
		NextStage:  stage,
	}
	if !out.Structured {
		slog.Warn("Generator returned unstructured output", "session_id", sessionID, "stage", stage)
		return reply
	}

	if out.NextStage != "" {
		next, ok := interview.ParseStage(out.NextStage)
		switch {
		case !ok:
			slog.Warn("Ignoring unknown next_stage", "session_id", sessionID, "next_stage", out.NextStage)
		case !interview.CanTransition(stage, next):
			slog.Warn("Generator made an unexpected stage transition", "session_id", sessionID, "from", stage, "to", next)
			reply.NextStage = next
		default:
			reply.NextStage = next
		}
	}

	if q := interview.FindQuestion(questions, out.QuestionID); q != nil {
		id := q.ID
		reply.QuestionID = &id
		if forced != nil && *forced == id {
			reply.QuickReplies = q.QuickReplies
		}
	} else if out.QuestionID != nil {
		slog.Warn("Dropping unknown question_id", "session_id", sessionID, "question_id", *out.QuestionID)
	}

	switch {
	case !carriesReport(stage, reply.NextStage):
		if out.Report != nil || out.ReportErr != nil {
			slog.Debug("Dropping report emitted outside the summary stage", "session_id", sessionID, "next_stage", reply.NextStage)
		}
	case out.ReportErr != nil:
		slog.Warn("Dropping invalid report", "session_id", sessionID, "error", out.ReportErr)
	default:
		reply.Report = out.Report
	}

	return reply
}

// carriesReport reports whether a turn from -> to may carry a report draft.
// The confirming turn and a resume back to chat both restate the draft.
func carriesReport(from, to interview.Stage) bool {
	return from == interview.StageSummary || to == interview.StageSummary || to == interview.StageSummaryComplete
}
