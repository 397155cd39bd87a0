package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/team-mirai/mirai-gikai-sub000/interview"
)

var (
	ErrAuthenticationRequired = errors.New(interview.ReasonAuthenticationRequired)
	ErrAccessForbidden        = errors.New(interview.ReasonAccessForbidden)
	ErrSessionNotFound        = errors.New(interview.ReasonSessionNotFound)
	ErrConfigurationMissing   = errors.New("interview configuration not found")
	ErrBillNotFound           = errors.New("bill not found")
	ErrSessionNotCompletable  = errors.New("interview has not reached the end of the summary")
	ErrInvalidRating          = errors.New("rating must be between 1 and 5")
)

// GenerationError wraps a failure of the external generator. The caller may
// resubmit the same request marked as a retry.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a failure the client may retry.
func IsRetryable(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}

// denialError maps an ownership denial onto its sentinel.
func denialError(res interview.Resolution) error {
	switch res.Reason {
	case interview.ReasonAuthenticationRequired:
		return ErrAuthenticationRequired
	case interview.ReasonSessionNotFound:
		return ErrSessionNotFound
	default:
		return ErrAccessForbidden
	}
}

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// StatusFor maps an error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccessForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrConfigurationMissing),
		errors.Is(err, ErrBillNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionNotCompletable):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRating):
		return http.StatusUnprocessableEntity
	case interview.IsValidationError(err):
		return http.StatusUnprocessableEntity
	case IsRetryable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// newErrorResponse builds the error body for err. Internal errors are logged
// and not echoed.
func newErrorResponse(err error) ErrorResponse {
	message := err.Error()
	if StatusFor(err) == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		message = "internal server error"
	}
	return ErrorResponse{Error: message, Retryable: IsRetryable(err)}
}

// writeError writes err as a JSON error body
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(err))
	json.NewEncoder(w).Encode(newErrorResponse(err))
}

// writeJSON writes v with status 200
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
