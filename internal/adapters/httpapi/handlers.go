package httpapi

import (
	"net/http"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"go.uber.org/zap"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	sess, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, sess)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	sess, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, sess)
}

func (h *Handler) handleListEmails(w http.ResponseWriter, r *http.Request) {
	scenarioID, err := queryInt(r, "scenario_id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	level, err := queryInt(r, "level")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	msgs, err := h.training.ListMessages(r.Context(), core.MessageQuery{
		Mode:       core.Mode(r.URL.Query().Get("mode")),
		ScenarioID: scenarioID,
		Level:      int(level),
		Limit:      int(limit),
		Wave:       queryBool(r, "wave"),
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, msgs)
}

func (h *Handler) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.training.ListScenarios(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, scenarios)
}

func (h *Handler) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsCorrect bool `json:"is_correct"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	progress, err := h.training.SubmitResult(r.Context(), identityFrom(r).Username, req.IsCorrect)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, progress)
}

func (h *Handler) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req core.InteractionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	event, err := h.training.RecordInteraction(r.Context(), identityFrom(r).Username, req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, event)
}

type startRunResponse struct {
	RunID     int64     `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

func (h *Handler) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req core.StartRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	run, err := h.training.StartRun(r.Context(), identityFrom(r).Username, req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, startRunResponse{RunID: run.ID, StartedAt: run.StartedAt})
}

func (h *Handler) handleCompleteRun(w http.ResponseWriter, r *http.Request) {
	runID, err := urlID(r, "runID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req struct {
		Correct   int `json:"correct"`
		Incorrect int `json:"incorrect"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	run, err := h.training.CompleteRun(r.Context(), identityFrom(r).Username, runID, req.Correct, req.Incorrect)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{"ok": true, "run_id": run.ID})
}

type decisionResponse struct {
	ID                int64 `json:"id"`
	HadLinkClick      bool  `json:"had_link_click"`
	HadAttachmentOpen bool  `json:"had_attachment_open"`
}

func (h *Handler) handleRecordDecision(w http.ResponseWriter, r *http.Request) {
	var req core.DecisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	event, err := h.training.RecordDecision(r.Context(), identityFrom(r).Username, req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, decisionResponse{
		ID:                event.ID,
		HadLinkClick:      event.HadLinkClick,
		HadAttachmentOpen: event.HadAttachmentOpen,
	})
}

func (h *Handler) handleProfileMetrics(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = identityFrom(r).Username
	}

	metrics, err := h.training.ProfileMetrics(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.logger.Debug("Served profile metrics",
		zap.String("user_id", userID),
		zap.Int("total_runs", metrics.Overall.TotalRuns))
	respondJSON(w, h.logger, http.StatusOK, metrics)
}
