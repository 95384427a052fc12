package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/nubohq/knowcheck/internal/i18n"
	"github.com/nubohq/knowcheck/internal/summary"
)

const managerUsername = "manager"

// requireManager guards the manager view with HTTP Basic auth checked
// against the configured bcrypt password hash.
func (h *Handler) requireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="manager"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if subtle.ConstantTimeCompare([]byte(user), []byte(managerUsername)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if err := bcrypt.CompareHashAndPassword(h.managerHash, []byte(pass)); err != nil {
			slog.Warn("manager auth failed")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleManagerTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.agg.Topics()
	if err != nil {
		slog.Error("failed to list archived topics", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(topics) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"topics":  []string{},
			"message": appI18n.T(r.Context(), "NoEvaluationData"),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (h *Handler) handleTeamSummary(w http.ResponseWriter, r *http.Request) {
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

	report, err := h.agg.TeamSummary(r.Context(), topic)
	if errors.Is(err, summary.ErrNoTranscripts) {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "NoEvaluationData"))
		return
	}
	if err != nil {
		slog.Error("team summary failed", "topic", topic, "error", err)
		writeError(w, http.StatusBadGateway, "team summary failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"title":  appI18n.Td(r.Context(), "TeamSummaryFor", map[string]any{"Topic": report.Topic}),
		"report": report,
	})
}
