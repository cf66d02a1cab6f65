package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/verdict/internal/api/handlers"
	mw "github.com/Harshitk-cp/verdict/internal/api/middleware"
	"github.com/Harshitk-cp/verdict/internal/buildconfig"
	"github.com/Harshitk-cp/verdict/internal/config"
	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/Harshitk-cp/verdict/internal/events"
	"github.com/Harshitk-cp/verdict/internal/llm"
	"github.com/Harshitk-cp/verdict/internal/service"
	"github.com/Harshitk-cp/verdict/internal/store"
	"github.com/Harshitk-cp/verdict/internal/store/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// App holds the router and the services main needs for lifecycle management.
type App struct {
	Router       *chi.Mux
	Deliberation *service.DeliberationService
	Events       *events.Hub
	metrics      *mw.MetricsCollector
	startTime    time.Time
}

// NewApp wires the deliberation service over cs and oracle and mounts the
// HTTP API. Turn events go to the in-process hub until SetPublisher is
// called on Deliberation.
func NewApp(cs domain.CaseStore, oracle domain.OracleClient, logger *zap.Logger) *App {
	hub := events.NewHub()

	deliberationSvc := service.NewDeliberationService(cs, oracle, logger)
	deliberationSvc.SetOracleTimeout(config.OracleTimeout())
	deliberationSvc.SetPublisher(hub)

	caseHandler := handlers.NewCaseHandler(deliberationSvc, logger)
	streamHandler := handlers.NewStreamHandler(deliberationSvc, hub, config.WSAllowedOrigins(), logger)

	r := chi.NewRouter()

	app := &App{
		Router:       r,
		Deliberation: deliberationSvc,
		Events:       hub,
		metrics:      mw.NewMetricsCollector(),
		startTime:    time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(cs))
	r.Get("/metrics", app.metricsHandler())
	r.Get("/version", versionHandler)

	r.Route("/v1/cases", func(r chi.Router) {
		r.Post("/", caseHandler.Open)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", caseHandler.Get)
			r.Post("/turns", caseHandler.SubmitTurn)
			r.Get("/stream", streamHandler.Stream)
		})
	})

	return app
}

func healthHandler(cs domain.CaseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := cs.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(buildconfig.Get())
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)
		counts := app.metrics.Snapshot()

		response := map[string]any{
			"uptime_seconds":     uptime.Seconds(),
			"uptime_human":       uptime.Round(time.Second).String(),
			"request_count":      counts.Requests,
			"error_count":        counts.Errors,
			"client_error_count": counts.ClientErrors,
			"server_error_count": counts.ServerErrors,
			"stream_count":       counts.Streams,
			"goroutines":         runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.CaseStore      = (*store.CaseStore)(nil)
	_ domain.CaseStore      = (*sqlite.CaseStore)(nil)
	_ domain.OracleClient   = (*llm.OpenAIClient)(nil)
	_ domain.OracleClient   = (*llm.AnthropicClient)(nil)
	_ domain.OracleClient   = (*llm.GeminiClient)(nil)
	_ domain.OracleClient   = (*llm.MockClient)(nil)
	_ domain.EventPublisher = (*events.Hub)(nil)
	_ domain.EventPublisher = (*events.RedisBus)(nil)
)
