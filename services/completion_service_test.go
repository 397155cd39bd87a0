package services

import (
	"context"
	"errors"
	"testing"

	"github.com/team-mirai/mirai-gikai-sub000/interview"
)

// runToSummary plays one opening turn whose reply is response and returns the
// session id.
func runToSummary(t *testing.T, store *memoryStore, response string) string {
	t.Helper()
	store.addInterview("bill-1", "loop", "q1")
	svc := newTestChatService(store, (&scriptedGenerator{}).add(response))
	return chat(t, svc, "bill-1", "").SessionID
}

func TestCompleteStoresReport(t *testing.T) {
	store := newMemoryStore()
	sessionID := runToSummary(t, store, summaryEnvelope("draft", validReportJSON))
	completion := NewCompletionService(store, store)

	view, err := completion.Complete(context.Background(), sessionID, respondent)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if view.Stance != interview.StanceFor || view.RoleTitle != "会社員" {
		t.Errorf("unexpected report view: %+v", view)
	}

	if store.sessions[sessionID].CompletedAt == nil {
		t.Error("expected session to be completed")
	}
	row := store.reports[sessionID]
	if row == nil {
		t.Fatal("expected stored report")
	}
	if len(row.Scores) != len(interview.ScoreMetrics) {
		t.Fatalf("expected %d score rows, got %d", len(interview.ScoreMetrics), len(row.Scores))
	}
	for _, s := range row.Scores {
		if s.Metric == "total" && s.Score != 72 {
			t.Errorf("expected rounded total 72, got %d", s.Score)
		}
	}

	got, err := completion.Report(context.Background(), sessionID, respondent)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if got.Summary != view.Summary {
		t.Errorf("expected stored summary %q, got %q", view.Summary, got.Summary)
	}
}

func TestCompleteStoresCorrectionFromConfirmingTurn(t *testing.T) {
	store := newMemoryStore()
	store.addInterview("bill-1", "loop", "q1")
	gen := (&scriptedGenerator{}).
		add(summaryEnvelope("draft", validReportJSON)).
		add(stageEnvelope("Thank you, recorded.", interview.StageSummaryComplete, againstReportJSON))
	svc := newTestChatService(store, gen)

	chat(t, svc, "bill-1", "")
	final := chat(t, svc, "bill-1", "Actually I am against it")
	if final.Message.Report == nil {
		t.Fatal("the confirming turn must carry the corrected report")
	}

	view, err := NewCompletionService(store, store).Complete(context.Background(), final.SessionID, respondent)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if view.Stance != interview.StanceAgainst {
		t.Errorf("expected the corrected stance, got %s", view.Stance)
	}
	if got := store.reports[final.SessionID].Stance; got != string(interview.StanceAgainst) {
		t.Errorf("expected stored stance against, got %s", got)
	}
}

func TestCompleteRejections(t *testing.T) {
	tests := []struct {
		name     string
		response string
		auth     interview.AuthResult
		want     error
		status   int
	}{
		{
			name:     "still chatting",
			response: askEnvelope("q1?", "q1"),
			auth:     respondent,
			want:     ErrSessionNotCompletable,
			status:   409,
		},
		{
			name:     "summary without report",
			response: `{"text":"let me summarize","next_stage":"summary"}`,
			auth:     respondent,
			status:   422,
		},
		{
			name:     "report missing scores",
			response: summaryEnvelope("draft", `{"summary":"s","stance":"neutral","role":"general_citizen","opinions":[]}`),
			auth:     respondent,
			status:   422,
		},
		{
			name:     "other respondent",
			response: summaryEnvelope("draft", validReportJSON),
			auth:     interview.AuthResult{UserID: "user-2"},
			want:     ErrAccessForbidden,
			status:   403,
		},
		{
			name:     "unauthenticated",
			response: summaryEnvelope("draft", validReportJSON),
			auth:     interview.AuthResult{},
			want:     ErrAuthenticationRequired,
			status:   401,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			sessionID := runToSummary(t, store, tt.response)
			completion := NewCompletionService(store, store)

			_, err := completion.Complete(context.Background(), sessionID, tt.auth)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if got := StatusFor(err); got != tt.status {
				t.Errorf("expected status %d, got %d (%v)", tt.status, got, err)
			}
			if store.sessions[sessionID].CompletedAt != nil {
				t.Error("a rejected completion must not change the session")
			}
			if store.reports[sessionID] != nil {
				t.Error("a rejected completion must not store a report")
			}
		})
	}
}

func TestCompleteUnknownSession(t *testing.T) {
	completion := NewCompletionService(newMemoryStore(), newMemoryStore())
	_, err := completion.Complete(context.Background(), "missing", respondent)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRate(t *testing.T) {
	store := newMemoryStore()
	sessionID := runToSummary(t, store, summaryEnvelope("draft", validReportJSON))
	completion := NewCompletionService(store, store)

	if err := completion.Rate(context.Background(), sessionID, respondent, 4); !errors.Is(err, ErrSessionNotCompletable) {
		t.Errorf("expected rating before completion to fail, got %v", err)
	}

	if _, err := completion.Complete(context.Background(), sessionID, respondent); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	tests := []struct {
		rating int
		want   error
	}{
		{0, ErrInvalidRating},
		{6, ErrInvalidRating},
		{1, nil},
		{5, nil},
	}
	for _, tt := range tests {
		err := completion.Rate(context.Background(), sessionID, respondent, tt.rating)
		if !errors.Is(err, tt.want) {
			t.Errorf("Rate(%d) = %v, want %v", tt.rating, err, tt.want)
		}
	}
	if r := store.sessions[sessionID].Rating; r == nil || *r != 5 {
		t.Errorf("expected stored rating 5, got %v", r)
	}
}
