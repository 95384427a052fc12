package httpapi

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/nubohq/knowcheck/internal/catalog"
	appI18n "github.com/nubohq/knowcheck/internal/i18n"
	"github.com/nubohq/knowcheck/internal/model"
	"github.com/nubohq/knowcheck/internal/session"
	"github.com/nubohq/knowcheck/internal/summary"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine      *session.Engine
	agg         *summary.Aggregator
	managerHash []byte

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// liveSession pairs a session with its own mutex. The mutex serializes
// submits so a rapid resubmission cannot double-advance the state machine.
type liveSession struct {
	mu sync.Mutex
	s  *session.Session
}

// New creates a new Handler. managerHash is the bcrypt hash of the manager
// view password.
func New(engine *session.Engine, agg *summary.Aggregator, managerHash []byte) *Handler {
	return &Handler{
		engine:      engine,
		agg:         agg,
		managerHash: managerHash,
		sessions:    make(map[string]*liveSession),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/topics", h.handleTopics)
	r.Post("/api/sessions", h.handleStartSession)
	r.Get("/api/sessions/{sessionID}", h.handleGetSession)
	r.Post("/api/sessions/{sessionID}/answers", h.handleAnswer)
	r.Post("/api/sessions/{sessionID}/reset", h.handleReset)
	r.Route("/api/manager", func(mr chi.Router) {
		mr.Use(h.requireManager)
		mr.Get("/topics", h.handleManagerTopics)
		mr.Post("/summary", h.handleTeamSummary)
	})
}

type sessionResponse struct {
	SessionID       string          `json:"session_id"`
	Topic           string          `json:"topic"`
	Messages        []model.Message `json:"messages"`
	SessionComplete bool            `json:"session_complete"`
}

type turnResponse struct {
	Messages        []model.Message `json:"messages"`
	SessionComplete bool            `json:"session_complete"`
}

func (h *Handler) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics := append(catalog.KnownTopics(), catalog.SentinelTopic)
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "TopicRequired"))
		return
	}

	s, err := h.engine.Start(topic)
	if err != nil {
		slog.Error("failed to start session", "topic", topic, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	id, err := newSessionID()
	if err != nil {
		slog.Error("failed to generate session ID", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.mu.Lock()
	h.sessions[id] = &liveSession{s: s}
	h.mu.Unlock()

	slog.Info("session started", "session_id", id, "topic", topic, "questions", len(s.Questions))
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: id,
		Topic:     topic,
		Messages:  s.Transcript,
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ls := h.lookup(id)
	if ls == nil {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "SessionNotFound"))
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:       id,
		Topic:           ls.s.Topic,
		Messages:        ls.s.Transcript,
		SessionComplete: ls.s.Completed,
	})
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ls := h.lookup(id)
	if ls == nil {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "SessionNotFound"))
		return
	}

	var req struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Reject, don't queue: a submit that arrives while a turn is still being
	// evaluated must not be accepted as the answer to the next question.
	if !ls.mu.TryLock() {
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "TurnInProgress"))
		return
	}
	defer ls.mu.Unlock()

	result, err := h.engine.Submit(r.Context(), ls.s, req.Answer)
	switch {
	case errors.Is(err, session.ErrEmptyAnswer):
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "AnswerRequired"))
		return
	case errors.Is(err, session.ErrTurnInProgress):
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "TurnInProgress"))
		return
	case errors.Is(err, session.ErrSessionCompleted):
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "SessionCompleted"))
		return
	case err != nil:
		slog.Error("submit failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	messages := result.Messages
	if result.Report != nil && !result.Report.Archived {
		notice := model.Message{
			Role:    model.RoleAssistant,
			Content: appI18n.T(r.Context(), "ArchiveFailed"),
		}
		// Keep the transcript a superset of everything shown to the user.
		ls.s.Transcript = append(ls.s.Transcript, notice)
		messages = append(messages, notice)
	}
	writeJSON(w, http.StatusOK, turnResponse{
		Messages:        messages,
		SessionComplete: result.SessionComplete,
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ls := h.lookup(id)
	if ls == nil {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "SessionNotFound"))
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	s, err := h.engine.Start(ls.s.Topic)
	if err != nil {
		slog.Error("failed to reset session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ls.s = s

	slog.Info("session reset", "session_id", id, "topic", s.Topic)
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: id,
		Topic:     s.Topic,
		Messages:  s.Transcript,
	})
}

func (h *Handler) lookup(id string) *liveSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[id]
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
