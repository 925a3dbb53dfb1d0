package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/mcdev12/flashsum/go/internal/flash/engine"
	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
	"github.com/rs/zerolog/log"
)

var errBadRequest = errors.New("bad request")

// RegisterRoutes registers the command API, the event hub and the health
// endpoints.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/stop", s.handleStop)
	mux.HandleFunc("POST /api/auto-repeat/cancel", s.handleCancelAutoRepeat)
	mux.HandleFunc("POST /api/session/{id}/answer", s.handleAnswer)
	mux.HandleFunc("POST /api/session/{id}/answer-text", s.handleAnswerText)
	mux.HandleFunc("POST /api/session/{id}/validated", s.handleMarkValidated)
	mux.HandleFunc("POST /api/session/{id}/acknowledge", s.handleAcknowledge)

	mux.Handle("GET /ws/events", s.hub)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Stats())
	})

	log.Info().Msg("flash backend routes registered")
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	var req session.StartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.engine.StartSession(r.Context(), req.Config, req.AutoRepeat)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.StopSession(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleCancelAutoRepeat(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CancelAutoRepeat(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req session.SubmitAnswerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.engine.SubmitAnswer(r.Context(), id, req.ProvidedSum)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleAnswerText(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req session.SubmitAnswerTextRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.engine.SubmitAnswerText(r.Context(), id, req.ProvidedText)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleMarkValidated(w http.ResponseWriter, r *http.Request) {
	s.handleWaiting(w, r, s.engine.MarkValidated)
}

func (s *Service) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.handleWaiting(w, r, s.engine.AcknowledgeComplete)
}

func (s *Service) handleWaiting(w http.ResponseWriter, r *http.Request, command func(context.Context, uint64) (*events.AutoRepeatWaiting, error)) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	waiting, err := command(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.WaitingResponse{AutoRepeatWaiting: waiting})
}

func sessionID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid session id %q", errBadRequest, r.PathValue("id"))
	}
	return id, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", errBadRequest)
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
	case errors.Is(err, engine.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrSessionRunning):
		return http.StatusConflict
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("command failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("command rejected")
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
