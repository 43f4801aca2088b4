package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atlas-ai/knowledge-core/internal/httpapi"
	"github.com/atlas-ai/knowledge-core/internal/middleware"
)

// Dependencies holds every collaborator the router wires into handlers.
type Dependencies struct {
	DB          httpapi.DBPinger
	Version     string
	FrontendURL string

	Metrics    *middleware.Metrics
	MetricsReg *prometheus.Registry

	AuthVerifier       middleware.TokenVerifier
	InternalAuthSecret string

	Build  httpapi.BuildDeps
	Chat   httpapi.ChatDeps
	Delete httpapi.DeleteDeps

	URLs        httpapi.URLLister
	Files       httpapi.FileLister
	CustomTexts httpapi.CustomTextLister
	QAPairs     httpapi.QAPairLister

	Rotator httpapi.ConversationRotator

	GeneralRateLimiter *middleware.RateLimiter
	ChatRateLimiter    *middleware.RateLimiter
}

// New builds the chi router for every external interface endpoint, with the
// ambient middleware stack applied the same way across all of them.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	r.Get("/healthz", httpapi.Health(deps.DB, deps.Version))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalOrFirebaseAuth(deps.AuthVerifier, deps.InternalAuthSecret))
		if deps.GeneralRateLimiter != nil {
			r.Use(middleware.RateLimit(deps.GeneralRateLimiter))
		}

		timeout30s := middleware.Timeout(30 * time.Second)
		// Build/update get a longer timeout than the rest. Fetching and
		// extracting run on a background goroutine, so only the agent
		// write happens within the request.
		timeout120s := middleware.Timeout(120 * time.Second)

		r.With(timeout120s).Post("/build-agent", httpapi.BuildAgent(deps.Build))
		r.With(timeout120s).Post("/update-agent", httpapi.UpdateAgent(deps.Build))

		r.With(timeout30s).Get("/get-agent-urls", httpapi.ListURLs(deps.URLs))
		r.With(timeout30s).Get("/get-agent-files", httpapi.ListFiles(deps.Files))
		r.With(timeout30s).Get("/get-agent-custom-texts", httpapi.ListCustomTexts(deps.CustomTexts))
		r.With(timeout30s).Get("/get-agent-qa-pairs", httpapi.ListQAPairs(deps.QAPairs))

		r.With(timeout30s).Post("/remove-agent-links", httpapi.RemoveLinks(deps.Delete))
		r.With(timeout30s).Post("/delete-agent-files", httpapi.DeleteFiles(deps.Delete))
		r.With(timeout30s).Post("/delete-agent-custom-data", httpapi.DeleteCustomData(deps.Delete))

		r.With(timeout30s).Post("/rotate-conversation-id", httpapi.RotateConversationID(deps.Rotator))

		// Chat is SSE-capable and can run for as long as generation takes,
		// so it gets no write timeout. Rate limited more strictly than the
		// general group since each call triggers an LLM request.
		if deps.ChatRateLimiter != nil {
			r.With(middleware.RateLimit(deps.ChatRateLimiter)).Post("/query-agent", httpapi.Chat(deps.Chat))
		} else {
			r.Post("/query-agent", httpapi.Chat(deps.Chat))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "route not found"})
	})

	return r
}
