package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPTransportStream(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/interviews/bill-1/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: delta\ndata: {\"chunk\":\"Hel\",\"text\":\"Hel\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: delta\ndata: {\"chunk\":\"lo\",\"text\":\"Hello\"}\n\n")
		fmt.Fprint(w, "event: done\ndata: {\"session_id\":\"s1\",\"stage\":\"summary\",\"time_up\":true}\n\n")
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL+"/", nil)
	var texts []string
	turn, err := transport.Send(context.Background(), Params{BillID: "bill-1", Text: "hi", IsRetry: true}, func(d Delta) {
		texts = append(texts, d.Text)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn.SessionID != "s1" || turn.Stage != "summary" || !turn.TimeUp {
		t.Errorf("unexpected turn: %+v", turn)
	}
	if strings.Join(texts, "|") != "Hel|Hello" {
		t.Errorf("unexpected deltas: %v", texts)
	}
	if gotBody["text"] != "hi" || gotBody["is_retry"] != true {
		t.Errorf("unexpected request body: %v", gotBody)
	}
}

func TestHTTPTransportErrors(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		retryable bool
	}{
		{
			name: "json error before stream",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"error":"authentication required","retryable":false}`)
			},
			retryable: false,
		},
		{
			name: "retryable generation failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				fmt.Fprint(w, `{"error":"generation failed: boom","retryable":true}`)
			},
			retryable: true,
		},
		{
			name: "error event mid stream",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "event: delta\ndata: {\"chunk\":\"a\",\"text\":\"a\"}\n\n")
				fmt.Fprint(w, "event: error\ndata: {\"error\":\"generation failed: cut\",\"retryable\":true}\n\n")
			},
			retryable: true,
		},
		{
			name: "stream ends without result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "event: delta\ndata: {\"chunk\":\"a\",\"text\":\"a\"}\n\n")
			},
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPTransport(srv.URL, nil).Send(context.Background(), Params{BillID: "b"}, func(Delta) {})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v (err: %v)", got, tt.retryable, err)
			}
		})
	}
}

func TestIsRetryableContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPTransport(srv.URL, nil).Send(ctx, Params{BillID: "b"}, func(Delta) {})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("cancelled requests are not retryable")
	}
}
