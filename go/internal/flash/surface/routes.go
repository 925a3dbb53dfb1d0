package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mcdev12/flashsum/go/internal/flash/controller"
	"github.com/mcdev12/flashsum/go/internal/flash/history"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
	"github.com/mcdev12/flashsum/go/internal/flash/view"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

var errBadRequest = errors.New("bad request")

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	View  view.View        `json:"view"`
	State controller.State `json:"state"`
}

// AnswerRequest carries either a typed answer or a numeric one.
type AnswerRequest struct {
	Text        *string `json:"text,omitempty"`
	ProvidedSum *int64  `json:"provided_sum,omitempty"`
}

type AcknowledgeRequest struct {
	SessionID uint64 `json:"session_id,omitempty"` // defaults to the tracked session
}

type HistoryResponse struct {
	Records []history.Record `json:"records"`
	Total   int              `json:"total"`
	Correct int              `json:"correct"`
}

// Routes returns the surface HTTP API.
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/session/start", s.handleStart)
		r.Post("/session/stop", s.handleStop)
		r.Post("/session/dismiss", s.handleDismiss)
		r.Post("/session/acknowledge", s.handleAcknowledge)
		r.Post("/answer", s.handleAnswer)
		r.Post("/answer/validated", s.handleMarkValidated)
		r.Post("/auto-repeat/cancel", s.handleCancelAutoRepeat)
		r.Get("/history", s.handleHistory)
	})

	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":   "ok",
		"browsers": s.hub.Connections(),
	}
	if s.opts.History != nil {
		if err := s.opts.History.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["history"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Service) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.controller.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{View: view.Render(st), State: st})
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	req := session.StartRequest{Config: s.opts.Session, AutoRepeat: s.opts.AutoRepeat}
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.controller.Start(r.Context(), req.Config, req.AutoRepeat); err != nil {
		writeError(w, err)
		return
	}
	s.writeState(w, r)
}

func (s *Service) handleStop(w http.ResponseWriter, r *http.Request) {
	s.runAndWriteState(w, r, s.controller.Stop)
}

func (s *Service) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.runAndWriteState(w, r, s.controller.Dismiss)
}

func (s *Service) handleCancelAutoRepeat(w http.ResponseWriter, r *http.Request) {
	s.runAndWriteState(w, r, s.controller.CancelAutoRepeat)
}

func (s *Service) handleMarkValidated(w http.ResponseWriter, r *http.Request) {
	s.runAndWriteState(w, r, s.controller.MarkValidated)
}

func (s *Service) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionID == 0 {
		st, err := s.controller.Snapshot(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		req.SessionID = st.SessionID
	}

	if err := s.controller.AcknowledgeComplete(r.Context(), req.SessionID); err != nil {
		writeError(w, err)
		return
	}
	s.writeState(w, r)
}

func (s *Service) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var (
		validation session.Validation
		err        error
	)
	switch {
	case req.Text != nil:
		validation, err = s.controller.SubmitAnswerText(r.Context(), *req.Text)
	case req.ProvidedSum != nil:
		validation, err = s.controller.SubmitAnswer(r.Context(), *req.ProvidedSum)
	default:
		err = fmt.Errorf("%w: text or provided_sum is required", errBadRequest)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validation)
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeJSON(w, http.StatusOK, HistoryResponse{Records: []history.Record{}})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, fmt.Errorf("%w: limit must be between 1 and 500", errBadRequest))
			return
		}
		limit = n
	}

	records, err := s.opts.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.opts.History.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Records: records, Total: stats.Total, Correct: stats.Correct})
}

func (s *Service) runAndWriteState(w http.ResponseWriter, r *http.Request, fn func(context.Context) error) {
	if err := fn(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.writeState(w, r)
}

func (s *Service) writeState(w http.ResponseWriter, r *http.Request) {
	st, err := s.controller.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{View: view.Render(st), State: st})
}

func decodeOptionalBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	var inputErr *session.ValidationInputError
	switch {
	case errors.Is(err, errBadRequest), errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrNoActiveSession),
		errors.Is(err, controller.ErrRoundNotComplete),
		errors.Is(err, controller.ErrStartCancelled),
		errors.Is(err, controller.ErrFullscreenUnavailable):
		return http.StatusConflict
	case errors.Is(err, controller.ErrCommandFailed):
		return http.StatusBadGateway
	case errors.Is(err, controller.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.Error().Err(err).Int("status", status).Msg("surface request failed")
	}
	writeJSON(w, status, session.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
