package services

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/team-mirai/mirai-gikai-sub000/interview"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

type InterviewEndpoints struct {
	catalog    *Catalog
	chat       *ChatService
	completion *CompletionService
}

func NewInterviewEndpoints(catalog *Catalog, chat *ChatService, completion *CompletionService) *InterviewEndpoints {
	return &InterviewEndpoints{
		catalog:    catalog,
		chat:       chat,
		completion: completion,
	}
}

type ChatRequestBody struct {
	Text    string `json:"text" validate:"max=4000"`
	IsRetry bool   `json:"is_retry"`
}

type RatingRequest struct {
	Rating int `json:"rating" validate:"required"`
}

type ReportResponse struct {
	SessionID string                `json:"session_id"`
	Report    *interview.ReportView `json:"report"`
}

// InterviewSummary is the public description of a bill's interview
type InterviewSummary struct {
	BillID            string         `json:"bill_id"`
	Title             string         `json:"title"`
	Mode              interview.Mode `json:"mode"`
	Themes            []string       `json:"themes"`
	QuestionCount     int            `json:"question_count"`
	EstimatedDuration *int           `json:"estimated_duration"`
}

// RegisterRoutes mounts the respondent-facing interview API. The caller must
// run Identify (or Middleware) in front of these routes.
func (e *InterviewEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/interviews", func(r chi.Router) {
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/complete", e.CompleteHandler)
			r.Get("/report", e.ReportHandler)
			r.Put("/rating", e.RatingHandler)
		})
		r.Post("/{billID}/chat", e.ChatHandler)
		r.Get("/{billID}/session", e.SessionHandler)
		r.Post("/{billID}/restart", e.RestartHandler)
	})
	r.Get("/bills/{billID}/interview", e.SummaryHandler)
}

// ChatHandler runs one turn and streams it as server-sent events: delta
// events while generating, then a done event with the turn result or an
// error event.
func (e *InterviewEndpoints) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var body ChatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := requestValidator.Struct(body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req := ChatRequest{
		BillID:  chi.URLParam(r, "billID"),
		Auth:    AuthFromContext(r.Context()),
		Text:    body.Text,
		IsRetry: body.IsRetry,
	}

	stream := newSSEStream(w)
	result, err := e.chat.Chat(r.Context(), req, func(d Delta) error {
		return stream.Send(eventDelta, d)
	})
	if err != nil {
		slog.Warn("Chat turn failed", "error", err, "bill_id", req.BillID, "retryable", IsRetryable(err))
		stream.Fail(err)
		return
	}

	if err := stream.Send(eventDone, result); err != nil {
		slog.Warn("Failed to send turn result", "error", err, "session_id", result.SessionID)
	}
}

// SessionHandler returns the respondent's current session for a bill
func (e *InterviewEndpoints) SessionHandler(w http.ResponseWriter, r *http.Request) {
	state, err := e.chat.State(r.Context(), chi.URLParam(r, "billID"), AuthFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, state)
}

// RestartHandler archives the current session and starts a new one
func (e *InterviewEndpoints) RestartHandler(w http.ResponseWriter, r *http.Request) {
	state, err := e.chat.Restart(r.Context(), chi.URLParam(r, "billID"), AuthFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, state)
}

// CompleteHandler confirms the drafted report and completes the session
func (e *InterviewEndpoints) CompleteHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	report, err := e.completion.Complete(r.Context(), sessionID, AuthFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ReportResponse{SessionID: sessionID, Report: report})
}

// ReportHandler returns a completed session's report
func (e *InterviewEndpoints) ReportHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	report, err := e.completion.Report(r.Context(), sessionID, AuthFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ReportResponse{SessionID: sessionID, Report: report})
}

// RatingHandler stores the respondent's rating of a completed interview
func (e *InterviewEndpoints) RatingHandler(w http.ResponseWriter, r *http.Request) {
	var req RatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := requestValidator.Struct(req); err != nil {
		writeError(w, ErrInvalidRating)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if err := e.completion.Rate(r.Context(), sessionID, AuthFromContext(r.Context()), req.Rating); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"session_id": sessionID,
		"rating":     req.Rating,
	})
}

// SummaryHandler describes a bill's interview without starting it
func (e *InterviewEndpoints) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	loaded, err := e.catalog.Load(r.Context(), chi.URLParam(r, "billID"))
	if err != nil {
		writeError(w, err)
		return
	}

	themes := []string(loaded.Config.Themes)
	if themes == nil {
		themes = []string{}
	}
	writeJSON(w, InterviewSummary{
		BillID:            loaded.Bill.ID,
		Title:             loaded.Bill.Title,
		Mode:              interview.Mode(loaded.Config.Mode),
		Themes:            themes,
		QuestionCount:     len(loaded.Questions),
		EstimatedDuration: loaded.Config.EstimatedDuration,
	})
}
