package httpapi

import (
	"net/http"
	"strconv"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/auth"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Handler serves the Content API
type Handler struct {
	training *core.TrainingService
	pvp      *core.PvpService
	auth     *auth.Service
	logger   *zap.Logger
}

// NewHandler creates the Content API handler
func NewHandler(training *core.TrainingService, pvp *core.PvpService, authSvc *auth.Service, logger *zap.Logger) *Handler {
	return &Handler{
		training: training,
		pvp:      pvp,
		auth:     authSvc,
		logger:   logger,
	}
}

// Routes builds the chi router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/register/", h.handleRegister)
		api.Post("/login/", h.handleLogin)
		api.Get("/emails/", h.handleListEmails)
		api.Get("/scenarios/", h.handleListScenarios)

		api.Group(func(pr chi.Router) {
			pr.Use(requireAuth(h.auth, h.logger))

			pr.Post("/submit/", h.handleSubmitResult)
			pr.Post("/interactions/", h.handleRecordInteraction)
			pr.Post("/metrics/level-runs/start/", h.handleStartRun)
			pr.Post("/metrics/level-runs/{runID}/complete/", h.handleCompleteRun)
			pr.Post("/metrics/decisions/", h.handleRecordDecision)
			pr.Get("/profile/metrics/", h.handleProfileMetrics)

			pr.Route("/pvp", h.pvpRoutes)
		})
	})

	return r
}

func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}
