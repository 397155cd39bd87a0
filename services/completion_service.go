package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/team-mirai/mirai-gikai-sub000/interview"
	"github.com/team-mirai/mirai-gikai-sub000/models"
)

const (
	minRating = 1
	maxRating = 5
)

// CompletionService finalizes interviews: it confirms the drafted report,
// serves it back and records the respondent's rating.
type CompletionService struct {
	store    InterviewStore
	messages MessageStore
	now      func() time.Time
}

func NewCompletionService(store InterviewStore, messages MessageStore) *CompletionService {
	return &CompletionService{
		store:    store,
		messages: messages,
		now:      time.Now,
	}
}

// Complete validates the latest drafted report strictly, stores it with its
// scores and marks the session completed. Any validation failure aborts
// without changing the session.
func (s *CompletionService) Complete(ctx context.Context, sessionID string, auth interview.AuthResult) (*interview.ReportView, error) {
	session, err := s.authorize(ctx, sessionID, auth)
	if err != nil {
		return nil, err
	}

	rows, err := s.messages.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	stored := models.MessagesToStored(rows)
	stage := interview.CurrentStage(interview.DecodeHistory(stored))
	if stage == interview.StageChat {
		return nil, fmt.Errorf("%w: session %s is in the %s stage", ErrSessionNotCompletable, session.ID, stage)
	}

	report, err := latestReport(stored)
	if err != nil {
		slog.Warn("Rejecting completion with an invalid report", "session_id", session.ID, "error", err)
		return nil, err
	}
	if err := report.ValidateForCompletion(); err != nil {
		slog.Warn("Rejecting completion with an incomplete report", "session_id", session.ID, "error", err)
		return nil, err
	}

	row := models.NewInterviewReport(session.ID, report)
	if err := s.store.CompleteInterview(ctx, row, s.now()); err != nil {
		return nil, fmt.Errorf("failed to complete interview: %w", err)
	}

	return report.View(), nil
}

// Report returns the confirmed report of a session, without scores
func (s *CompletionService) Report(ctx context.Context, sessionID string, auth interview.AuthResult) (*interview.ReportView, error) {
	session, err := s.authorize(ctx, sessionID, auth)
	if err != nil {
		return nil, err
	}

	report, err := s.store.GetInterviewReport(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get interview report: %w", err)
	}
	if report == nil {
		return nil, fmt.Errorf("%w: no report for session %s", ErrSessionNotFound, session.ID)
	}
	return report.View(), nil
}

// Rate stores a 1-5 rating on a completed session
func (s *CompletionService) Rate(ctx context.Context, sessionID string, auth interview.AuthResult, rating int) error {
	if rating < minRating || rating > maxRating {
		return ErrInvalidRating
	}

	session, err := s.authorize(ctx, sessionID, auth)
	if err != nil {
		return err
	}
	if session.CompletedAt == nil {
		return fmt.Errorf("%w: session %s is not completed", ErrSessionNotCompletable, session.ID)
	}

	if err := s.store.UpdateSessionRating(ctx, session.ID, rating); err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}
	slog.Info("Interview rated", "session_id", session.ID, "rating", rating)
	return nil
}

func (s *CompletionService) authorize(ctx context.Context, sessionID string, auth interview.AuthResult) (*models.InterviewSession, error) {
	if !auth.Authenticated() {
		return nil, denialError(interview.Resolve(auth, nil))
	}

	session, err := s.store.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if res := interview.Resolve(auth, session.Record()); !res.Authorized {
		return nil, denialError(res)
	}
	return session, nil
}

// latestReport returns the report of the most recent assistant message that
// carries one, in its full persistence form.
func latestReport(messages []interview.StoredMessage) (*interview.Report, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != interview.RoleAssistant {
			continue
		}
		report, err := interview.DecodeFullReport(messages[i].Content)
		if err != nil {
			return nil, err
		}
		if report != nil {
			return report, nil
		}
	}
	return nil, &interview.ValidationError{Reason: "no report has been generated"}
}
