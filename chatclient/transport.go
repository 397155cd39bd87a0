package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// ErrStreamAborted is returned when the event stream ends without a result
var ErrStreamAborted = errors.New("chat stream ended before completion")

// StatusError is an error reply of the chat endpoint, either as a JSON body or
// as an error event in the stream.
type StatusError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *StatusError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("chat endpoint returned %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether err is a generation failure or an aborted
// stream. Authentication, ownership and configuration errors are not.
func IsRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable
	}
	if errors.Is(err, ErrStreamAborted) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return false
}

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// HTTPTransport posts turns to the chat endpoint and reads its server-sent
// events. The client's cookie jar carries the respondent's session.
type HTTPTransport struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport for the API at baseURL. A nil client
// gets a default one with a cookie jar.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		jar, _ := cookiejar.New(nil)
		client = &http.Client{Timeout: 120 * time.Second, Jar: jar}
	}
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Login signs the respondent in; the auth cookies land in the client's jar
func (t *HTTPTransport) Login(ctx context.Context, email, password string) error {
	data, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/api/v1/auth/login", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readStatusError(resp)
	}
	return nil
}

func (t *HTTPTransport) Send(ctx context.Context, p Params, onDelta func(Delta)) (*Turn, error) {
	data, err := json.Marshal(map[string]any{
		"text":     p.Text,
		"is_retry": p.IsRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := t.BaseURL + "/api/v1/interviews/" + url.PathEscape(p.BillID) + "/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError(resp)
	}

	return readStream(resp.Body, onDelta)
}

func readStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		Message:    body.Error,
		Retryable:  body.Retryable,
	}
}

// readStream consumes events until a done or error event arrives
func readStream(r io.Reader, onDelta func(Delta)) (*Turn, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event == "" && data.Len() == 0 {
				continue
			}
			turn, done, err := dispatch(event, data.String(), onDelta)
			if done {
				return turn, err
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamAborted, err)
	}
	return nil, ErrStreamAborted
}

func dispatch(event, data string, onDelta func(Delta)) (*Turn, bool, error) {
	switch event {
	case "delta":
		var d Delta
		if err := json.Unmarshal([]byte(data), &d); err == nil {
			onDelta(d)
		}
		return nil, false, nil
	case "done":
		var turn Turn
		if err := json.Unmarshal([]byte(data), &turn); err != nil {
			return nil, true, fmt.Errorf("failed to decode turn result: %w", err)
		}
		return &turn, true, nil
	case "error":
		var body errorBody
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			body = errorBody{Error: data, Retryable: true}
		}
		return nil, true, &StatusError{Message: body.Error, Retryable: body.Retryable}
	default:
		return nil, false, nil
	}
}
