package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Harshitk-cp/speclens/internal/api/handlers"
	mw "github.com/Harshitk-cp/speclens/internal/api/middleware"
	"github.com/Harshitk-cp/speclens/internal/buildconfig"
	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/Harshitk-cp/speclens/internal/config"
	"github.com/Harshitk-cp/speclens/internal/dispatch"
	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/llm"
	"github.com/Harshitk-cp/speclens/internal/service"
	"github.com/Harshitk-cp/speclens/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// App holds the router and the services behind it.
type App struct {
	Router   *chi.Mux
	Services service.Services
	Table    *dispatch.Table
}

// NewApp wires stores, services, the capability table and the HTTP routes.
// ctx bounds background work started for the router, such as rate limiter
// cleanup.
func NewApp(ctx context.Context, db *pgxpool.Pool, domains *catalog.Registry, client domain.CompletionClient, logger *zap.Logger) (*App, error) {
	// Stores
	projectStore := store.NewProjectStore(db)
	sessionStore := store.NewSessionStore(db)
	statementStore := store.NewStatementStore(db)
	conflictStore := store.NewConflictStore(db)
	maturityStore := store.NewMaturityStore(db)
	txManager := store.NewTxManager(db, logger)

	// Services
	maturitySvc := service.NewMaturityService(projectStore, statementStore, maturityStore, domains, logger)
	exportSvc := service.NewExportService(statementStore, maturitySvc, logger)
	svcs := service.Services{
		Projects: service.NewProjectService(projectStore, sessionStore, statementStore, maturitySvc, logger),
		Elicitation: service.NewElicitationService(sessionStore, statementStore, txManager, maturitySvc, client, service.ElicitationOptions{
			MaxTokens:        config.LLMMaxTokens(),
			DynamicQuestions: config.DynamicQuestions(),
		}, logger),
		Conflicts: service.NewConflictService(conflictStore, txManager, maturitySvc, logger),
		Maturity:  maturitySvc,
		Phases:    service.NewPhaseService(projectStore, txManager, maturitySvc, phaseThresholds(), logger),
		Quality:   service.NewQualityService(statementStore, maturitySvc, logger),
		Export:    exportSvc,
		Codegen:   service.NewCodegenService(exportSvc, client, service.DefaultCodegenMaxTokens, logger),
	}

	table, err := dispatch.NewTable(logger, service.Bindings(svcs, conflictStore, config.CodegenMinMaturity())...)
	if err != nil {
		return nil, fmt.Errorf("build capability table: %w", err)
	}

	// Handlers
	projectHandler := handlers.NewProjectHandler(svcs, logger)
	sessionHandler := handlers.NewSessionHandler(svcs.Elicitation, logger)
	conflictHandler := handlers.NewConflictHandler(svcs.Conflicts, logger)
	domainHandler := handlers.NewDomainHandler(domains, logger)
	capabilityHandler := handlers.NewCapabilityHandler(table, logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Metrics)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(ctx, config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(db))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/domains", func(r chi.Router) {
			r.Get("/", domainHandler.List)
			r.Get("/{id}", domainHandler.GetByID)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", projectHandler.Create)
			r.Get("/", projectHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", projectHandler.GetByID)
				r.Put("/phase", projectHandler.SetPhase)
				r.Post("/advance", projectHandler.Advance)
				r.Get("/maturity", projectHandler.Maturity)
				r.Get("/statements", projectHandler.Statements)
				r.Post("/statements", projectHandler.SetStatement)
				r.Get("/history", projectHandler.History)
				r.Get("/conflicts", conflictHandler.List)
				r.Get("/quality", projectHandler.Quality)
				r.Get("/export/{format}", projectHandler.Export)
				r.Post("/extract", projectHandler.Extract)
				r.Post("/sessions", projectHandler.StartSession)
				r.Route("/sessions/{sessionID}", func(r chi.Router) {
					r.Get("/question", sessionHandler.NextQuestion)
					r.Post("/answers", sessionHandler.SubmitAnswer)
				})
			})
		})

		r.Post("/conflicts/{id}/resolve", conflictHandler.Resolve)

		r.Get("/capabilities", capabilityHandler.List)
		r.Post("/capabilities/{agent}/{action}", capabilityHandler.Dispatch)
	})

	return &App{Router: r, Services: svcs, Table: table}, nil
}

func phaseThresholds() service.PhaseThresholds {
	return service.PhaseThresholds{
		domain.PhaseAnalysis:       config.PhaseThreshold(string(domain.PhaseAnalysis)),
		domain.PhaseDesign:         config.PhaseThreshold(string(domain.PhaseDesign)),
		domain.PhaseImplementation: config.PhaseThreshold(string(domain.PhaseImplementation)),
	}
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": buildconfig.Version(),
			"commit":  buildconfig.Commit(),
		})
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.ProjectStore     = (*store.ProjectStore)(nil)
	_ domain.SessionStore     = (*store.SessionStore)(nil)
	_ domain.StatementStore   = (*store.StatementStore)(nil)
	_ domain.ConflictStore    = (*store.ConflictStore)(nil)
	_ domain.MaturityStore    = (*store.MaturityStore)(nil)
	_ domain.TxManager        = (*store.TxManager)(nil)
	_ domain.CompletionClient = (*llm.OpenAIClient)(nil)
	_ domain.CompletionClient = (*llm.AnthropicClient)(nil)
	_ domain.CompletionClient = (*llm.GeminiClient)(nil)
	_ domain.CompletionClient = (*llm.GuardedClient)(nil)
	_ domain.CompletionClient = (*llm.MockClient)(nil)
	_ handlers.DomainSource   = (*catalog.Registry)(nil)
)
