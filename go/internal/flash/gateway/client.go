package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
)

// APIError is a non-2xx answer from the backend. Message is the backend's
// error text, meant to be shown as is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client issues backend commands over the JSON command API. It keeps no
// session state.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient returns a client for the backend at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetTimeout bounds every request, including ones whose context has no
// deadline.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// StartSession issues start_session.
func (c *Client) StartSession(ctx context.Context, cfg session.Config, autoRepeat *session.AutoRepeatConfig) (session.StartResult, error) {
	var out session.StartResult
	err := c.do(ctx, http.MethodPost, "/api/session/start", session.StartRequest{Config: cfg, AutoRepeat: autoRepeat}, &out)
	return out, err
}

// StopSession issues stop_session.
func (c *Client) StopSession(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/session/stop", nil, nil)
}

// CancelAutoRepeat issues cancel_auto_repeat.
func (c *Client) CancelAutoRepeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auto-repeat/cancel", nil, nil)
}

// SubmitAnswer issues submit_answer.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID uint64, provided int64) (session.SubmitResult, error) {
	var out session.SubmitResult
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "answer"), session.SubmitAnswerRequest{ProvidedSum: provided}, &out)
	return out, err
}

// SubmitAnswerText issues submit_answer_text.
func (c *Client) SubmitAnswerText(ctx context.Context, sessionID uint64, text string) (session.SubmitResult, error) {
	var out session.SubmitResult
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "answer-text"), session.SubmitAnswerTextRequest{ProvidedText: text}, &out)
	return out, err
}

// MarkValidated issues mark_validated.
func (c *Client) MarkValidated(ctx context.Context, sessionID uint64) (*events.AutoRepeatWaiting, error) {
	var out session.WaitingResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "validated"), nil, &out); err != nil {
		return nil, err
	}
	return out.AutoRepeatWaiting, nil
}

// AcknowledgeComplete issues acknowledge_complete.
func (c *Client) AcknowledgeComplete(ctx context.Context, sessionID uint64) (*events.AutoRepeatWaiting, error) {
	var out session.WaitingResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "acknowledge"), nil, &out); err != nil {
		return nil, err
	}
	return out.AutoRepeatWaiting, nil
}

// Ping checks that the backend answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ping", nil, nil)
}

func sessionPath(sessionID uint64, action string) string {
	return fmt.Sprintf("/api/session/%d/%s", sessionID, action)
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, responseBody)
	}

	if out == nil || len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func apiError(status int, body []byte) *APIError {
	var payload session.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &APIError{StatusCode: status, Message: payload.Error}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: fmt.Sprintf("API returned status code: %d, response: %s", status, msg)}
}
