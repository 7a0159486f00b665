package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/api/handlers"
	mw "github.com/Harshitk-cp/engram-causal/internal/api/middleware"
	"github.com/Harshitk-cp/engram-causal/internal/buildconfig"
	"github.com/Harshitk-cp/engram-causal/internal/config"
	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"github.com/Harshitk-cp/engram-causal/internal/service"
	"github.com/Harshitk-cp/engram-causal/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router, the engine and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Engine    *service.CausalEngine
	Pruner    *service.PruneService
	startTime time.Time
	counters  mw.Counters
	done      chan struct{}
}

// routes is everything the router needs, so tests can mount it without a database.
type routes struct {
	causal         *handlers.CausalHandler
	contradictions *handlers.ContradictionHandler
	memories       *handlers.MemoryHandler
	graph          *handlers.GraphHandler
	ping           func(ctx context.Context) error
	apiKey         string
	rps            float64
	burst          int
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	causalStore := store.NewCausalStore(db)
	memoryStore := store.NewMemoryStore(db)
	auditStore := store.NewAuditStore(db)
	similarityStore := store.NewSimilarityStore(db)
	signalStore := store.NewSignalStore(db)

	// Env tunables over engine defaults
	cfg := causalConfig()

	// Services
	engine := service.NewCausalEngine(causalStore, memoryStore, auditStore, similarityStore, signalStore, similarityStore, cfg, logger)
	pruner := service.NewPruneService(engine, logger)
	pruner.SetInterval(config.PruneInterval())

	// Initialize app with metrics tracking
	app := &App{
		Engine:    engine,
		Pruner:    pruner,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
	// Handlers
	app.Router = app.mount(logger, routes{
		causal:         handlers.NewCausalHandler(engine, cfg.Traversal),
		contradictions: handlers.NewContradictionHandler(engine, memoryStore),
		memories:       handlers.NewMemoryHandler(memoryStore, engine, logger),
		graph:          handlers.NewGraphHandler(engine, pruner),
		ping:           db.Ping,
		apiKey:         config.APIKey(),
		rps:            config.RateLimitRPS(),
		burst:          config.RateLimitBurst(),
	})
	return app
}

// Close stops the router's background sweeps.
func (app *App) Close() {
	close(app.done)
}

// causalConfig overlays the env tunables on the engine defaults.
func causalConfig() service.CausalConfig {
	cfg := service.DefaultCausalConfig()
	cfg.Inference.Threshold = config.InferenceThreshold()
	cfg.Inference.MinSignals = config.InferenceMinSignals()
	cfg.Inference.TemporalWindow = config.TemporalWindow()
	if n := config.InferenceWorkers(); n > 0 {
		cfg.Inference.Workers = n
	}
	cfg.Traversal.MaxDepth = config.TraversalMaxDepth()
	cfg.Traversal.MinStrength = config.TraversalMinStrength()
	cfg.Traversal.MaxNodes = config.TraversalMaxNodes()
	cfg.Propagation.MaxDepth = config.PropagationDepth()
	cfg.Pruning.MinStrength = config.PruneMinStrength()
	cfg.Pruning.MaxUnvalidatedAge = config.PruneMaxAge()
	cfg.LockRetries = config.LockRetries()
	cfg.LockBackoff = config.LockBackoff()
	cfg.CandidateLimit = config.CandidateLimit()
	return cfg
}

func (app *App) mount(logger *zap.Logger, rt routes) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(mw.RequestID)                             // Generate/extract request ID first
	r.Use(middleware.RealIP)                        // Extract real IP
	r.Use(mw.Metrics(&app.counters))                // Collect metrics
	r.Use(mw.Logging(logger))                       // Log all requests
	r.Use(middleware.Recoverer)                     // Recover from panics
	r.Use(mw.RateLimit(rt.rps, rt.burst, app.done)) // Rate limiting

	// Health (no auth)
	r.Get("/health", healthHandler(rt.ping))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())
	r.Get("/version", versionHandler)

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(rt.apiKey))

		// Memories
		r.Route("/memories", func(r chi.Router) {
			r.Post("/", rt.memories.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.memories.GetByID)
				r.Delete("/", rt.memories.Delete)
				r.Post("/contradictions", rt.contradictions.Detect)

				// Traversal and explanation queries
				r.Get("/origins", rt.causal.Origins)
				r.Get("/effects", rt.causal.Effects)
				r.Get("/bidirectional", rt.causal.Bidirectional)
				r.Get("/neighbors", rt.causal.Neighbors)
				r.Get("/counterfactual", rt.causal.Counterfactual)
				r.Get("/narrative", rt.causal.Narrative)
				r.Get("/why", rt.causal.Why)
			})
		})

		// Edges
		r.Route("/edges", func(r chi.Router) {
			r.Post("/", rt.causal.AddEdge)
			r.Delete("/", rt.causal.RemoveEdge)
			r.Post("/infer", rt.causal.Infer)
		})
		r.Post("/interventions", rt.causal.Intervention)

		// Propagation (contradiction, confirmation, consensus)
		r.Post("/contradictions", rt.contradictions.Apply)
		r.Post("/confirmations", rt.contradictions.Confirm)
		r.Get("/consensus", rt.contradictions.Consensus)

		// Maintenance: stats, pruning and the audit trail
		r.Route("/graph", func(r chi.Router) {
			r.Get("/stats", rt.graph.Stats)
			r.Post("/prune", rt.graph.Prune)
			r.Get("/audit", rt.graph.Audit)
		})
	})

	return r
}

// healthHandler reports 503 when the database does not answer a ping.
func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := ping(r.Context()); err != nil {
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
	_ = json.NewEncoder(w).Encode(buildconfig.VersionInfo())
}

// metricsHandler serves runtime, request and graph counters as JSON.
func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"requests":       app.counters.Snapshot(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
				"sys_mb":   float64(memStats.Sys) / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}
		if app.Engine != nil {
			if stats, err := app.Engine.Stats(r.Context()); err == nil {
				response["graph"] = stats
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and the engine satisfy interfaces at compile time.
var (
	_ domain.CausalStore        = (*store.CausalStore)(nil)
	_ domain.MemoryStore        = (*store.MemoryStore)(nil)
	_ domain.AuditStore         = (*store.AuditStore)(nil)
	_ domain.SimilarityProvider = (*store.SimilarityStore)(nil)
	_ domain.CandidateFinder    = (*store.SimilarityStore)(nil)
	_ domain.SignalProvider     = (*store.SignalStore)(nil)
	_ handlers.MemoryWriter     = (*store.MemoryStore)(nil)
	_ handlers.CausalEngine     = (*service.CausalEngine)(nil)
)
