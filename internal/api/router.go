package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/prism-data/prism/internal/api/handlers"
	"github.com/prism-data/prism/internal/api/middleware"
	"github.com/prism-data/prism/internal/cache"
	"github.com/prism-data/prism/internal/config"
	"github.com/prism-data/prism/internal/datasource"
	"github.com/prism-data/prism/internal/embedding"
	"github.com/prism-data/prism/internal/events"
	"github.com/prism-data/prism/internal/llm"
	"github.com/prism-data/prism/internal/nlquery"
	"github.com/prism-data/prism/internal/queue"
	"github.com/prism-data/prism/internal/rerank"
	"github.com/prism-data/prism/internal/search"
	"github.com/prism-data/prism/internal/storage"
	"github.com/prism-data/prism/internal/vectorstore"
	"github.com/prism-data/prism/internal/warehouse"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	whDB  *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	llmGW llm.Gateway
}

// NewRouter wires the query engine. db backs the vector store and data
// source records; whDB is the analytical warehouse, which may be the same
// pool.
func NewRouter(db, whDB *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		whDB:  whDB,
		redis: rdb,
		cfg:   cfg,
		llmGW: llm.NewGateway(cfg.LLM),
	}
}

func (rt *Router) Setup() (http.Handler, error) {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(rt.redis, 100, time.Minute)
	r.Use(rl.Limit)

	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	store, err := rt.buildStorage()
	if err != nil {
		return nil, err
	}

	vs := vectorstore.NewPgStore(rt.db)
	embedSvc := embedding.NewService(rt.llmGW, rt.cfg.LLM.EmbeddingModel)
	reranker := rerank.NewClient(rt.cfg.Rerank)
	repo := datasource.NewRepo(rt.db)
	queueClient := queue.NewClient(rt.cfg.Redis)
	queryCache := cache.NewCache(rt.redis)

	whClient := warehouse.NewClient(rt.whDB, rt.cfg.Warehouse)
	whConn := datasource.NewWarehouseConnector(whClient)
	if err := whConn.Connect(context.Background()); err != nil {
		slog.Warn("warehouse connect failed, aggregation catalog empty", "error", err)
	}
	catalog := datasource.NewWarehouseCatalog(whConn, "default", "public")

	var sink events.Sink = events.NopSink{}
	if rt.cfg.Events.WebhookURL != "" {
		sink = events.NewWebhookSink(rt.cfg.Events.WebhookURL, rt.cfg.Events.WebhookSecret)
	}

	registry := nlquery.NewRegistry()
	if err := registry.Register("warehouse", nlquery.NewWarehouseStrategy(rt.llmGW, whClient, rt.cfg.LLM.DefaultModel)); err != nil {
		return nil, err
	}
	if err := registry.Register("crm", nlquery.NewCRMStrategy(vs, embedSvc, rt.cfg.Search.TopK)); err != nil {
		return nil, err
	}

	searchRouter := search.NewRouter(vs, embedSvc, reranker, catalog, rt.cfg.Search, rt.cfg.Rerank, sink)

	queryH := handlers.NewQueryHandler(searchRouter, registry, queryCache)
	dsH := handlers.NewDataSourceHandler(repo, store, rt.cfg.Storage.Bucket, queueClient)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", queryH.Search)
		r.Post("/nlquery", queryH.NLQuery)

		r.Route("/datasources", func(r chi.Router) {
			r.Post("/", dsH.Create)
			r.Get("/", dsH.List)
			r.Get("/{id}", dsH.Get)
			r.Delete("/{id}", dsH.Delete)
			r.Post("/{id}/ingest", dsH.Ingest)
		})
	})

	slog.Info("router configured", "strategies", registry.Types())
	return r, nil
}

func (rt *Router) buildStorage() (storage.Storage, error) {
	if rt.cfg.Storage.RemoteURL != "" {
		return storage.NewObjectStorage(rt.cfg.Storage.RemoteURL, rt.cfg.Storage.RemoteToken), nil
	}
	return storage.NewLocalStorage(rt.cfg.Storage.Dir)
}
