package services

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Server-sent event names of the chat stream
const (
	eventDelta = "delta"
	eventDone  = "done"
	eventError = "error"
)

// sseStream writes server-sent events. Headers are sent lazily with the first
// event so that a request failing before generation can still get a plain
// JSON error response.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEStream(w http.ResponseWriter) *sseStream {
	flusher, _ := w.(http.Flusher)
	return &sseStream{w: w, flusher: flusher}
}

func (s *sseStream) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

// Send writes one event with v as its JSON data
func (s *sseStream) Send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}
	s.start()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event, err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Fail reports err as an error event, or as a JSON error response when no
// event has been sent yet.
func (s *sseStream) Fail(err error) {
	if !s.started {
		writeError(s.w, err)
		return
	}
	s.Send(eventError, newErrorResponse(err))
}
