package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestStartSession(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/session/start" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req session.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Config.TotalNumbers != 5 || req.AutoRepeat == nil || req.AutoRepeat.Repeats != 2 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(session.StartResult{
			SessionID:           7,
			EffectiveConfig:     session.EffectiveConfig{DigitsPerNumber: 2, NumberDurationSeconds: 0.5, TotalNumbers: 5},
			EffectiveAutoRepeat: &session.EffectiveAutoRepeat{Enabled: true, Repeats: 2, DelaySeconds: 5},
		})
	})

	res, err := c.StartSession(context.Background(),
		session.Config{DigitsPerNumber: 2, NumberDurationSeconds: 0.5, TotalNumbers: 5},
		&session.AutoRepeatConfig{Enabled: true, Repeats: 2, DelaySeconds: 5})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if res.SessionID != 7 || res.EffectiveAutoRepeat == nil || res.EffectiveAutoRepeat.Repeats != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSubmitAnswerTextFoldsWaiting(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/session/3/answer-text" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req session.SubmitAnswerTextRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ProvidedText != "1,234" {
			t.Errorf("text = %q", req.ProvidedText)
		}
		json.NewEncoder(w).Encode(session.SubmitResult{
			Validation:        session.Validate(1234, 1234),
			AutoRepeatWaiting: &events.AutoRepeatWaiting{SessionID: 3, NextStartAtMs: 99, Remaining: 1},
		})
	})

	res, err := c.SubmitAnswerText(context.Background(), 3, "1,234")
	if err != nil {
		t.Fatalf("SubmitAnswerText: %v", err)
	}
	if !res.Validation.Correct || res.AutoRepeatWaiting == nil || res.AutoRepeatWaiting.Remaining != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestWaitingCommands(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/session/4/acknowledge":
			json.NewEncoder(w).Encode(session.WaitingResponse{
				AutoRepeatWaiting: &events.AutoRepeatWaiting{SessionID: 4, Remaining: 2},
			})
		case "/api/session/4/validated":
			json.NewEncoder(w).Encode(session.WaitingResponse{})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	w, err := c.AcknowledgeComplete(ctx, 4)
	if err != nil || w == nil || w.Remaining != 2 {
		t.Fatalf("AcknowledgeComplete = %+v, %v", w, err)
	}
	w, err = c.MarkValidated(ctx, 4)
	if err != nil || w != nil {
		t.Fatalf("MarkValidated = %+v, %v", w, err)
	}
	if err := c.StopSession(ctx); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if err := c.CancelAutoRepeat(ctx); err != nil {
		t.Fatalf("CancelAutoRepeat: %v", err)
	}
}

func TestErrorResponses(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/session/start":
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(session.ErrorResponse{Error: "session already running"})
		default:
			http.Error(w, "boom", http.StatusBadGateway)
		}
	})
	ctx := context.Background()

	_, err := c.StartSession(ctx, session.Config{}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Error() != "session already running" {
		t.Fatalf("apiErr = %+v", apiErr)
	}

	err = c.StopSession(ctx)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url)
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestSetTimeoutBoundsRequests(t *testing.T) {
	release := make(chan struct{})
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c.SetTimeout(20 * time.Millisecond)

	start := time.Now()
	err := c.StopSession(context.Background())
	if err == nil {
		t.Fatalf("StopSession succeeded against a stalled backend")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want a transport error", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("request took %v despite the timeout", elapsed)
	}
}
