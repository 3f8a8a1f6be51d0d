package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/prism-data/prism/internal/config"
	"github.com/prism-data/prism/internal/database"
	"github.com/prism-data/prism/internal/datasource"
	"github.com/prism-data/prism/internal/embedding"
	"github.com/prism-data/prism/internal/ingest"
	"github.com/prism-data/prism/internal/llm"
	"github.com/prism-data/prism/internal/queue"
	"github.com/prism-data/prism/internal/queue/workers"
	"github.com/prism-data/prism/internal/rowindex"
	"github.com/prism-data/prism/internal/storage"
	"github.com/prism-data/prism/internal/vectorstore"
	"github.com/prism-data/prism/pkg/chunker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.EnsureSchema(ctx, db); err != nil {
		slog.Error("schema setup failed", "error", err)
		os.Exit(1)
	}

	var store storage.Storage
	if cfg.Storage.RemoteURL != "" {
		store = storage.NewObjectStorage(cfg.Storage.RemoteURL, cfg.Storage.RemoteToken)
	} else {
		store, err = storage.NewLocalStorage(cfg.Storage.Dir)
		if err != nil {
			slog.Error("storage setup failed", "error", err)
			os.Exit(1)
		}
	}

	gw := llm.NewGateway(cfg.LLM)
	embedSvc := embedding.NewService(gw, cfg.LLM.EmbeddingModel)
	vs := vectorstore.NewPgStore(db)
	repo := datasource.NewRepo(db)

	chunkOpts := chunker.Options{
		Size:    cfg.Ingest.ChunkSize,
		Overlap: cfg.Ingest.ChunkOverlap,
	}
	docIngestor := ingest.NewDocumentIngestor(vs, embedSvc, repo, chunkOpts)
	tableIngestor := ingest.NewTableIngestor(
		rowindex.NewIndexer(vs, embedSvc), repo, cfg.Ingest.RowBatchSize)

	documentWorker := workers.NewDocumentWorker(store, cfg.Storage.Bucket, docIngestor)
	tableWorker := workers.NewTableWorker(store, cfg.Storage.Bucket, tableIngestor)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeIngestDocument, asynq.HandlerFunc(documentWorker.ProcessTask))
	registry.Register(queue.TypeIngestTable, asynq.HandlerFunc(tableWorker.ProcessTask))

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
