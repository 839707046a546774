package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/pixelseek/pixelseek/internal/db"
	"github.com/pixelseek/pixelseek/internal/logger"
	"github.com/pixelseek/pixelseek/internal/platform/clip"
	"github.com/pixelseek/pixelseek/internal/platform/qdrant"
	"github.com/pixelseek/pixelseek/internal/queue"
	"github.com/pixelseek/pixelseek/internal/repos"
	"github.com/pixelseek/pixelseek/internal/services"
	"github.com/pixelseek/pixelseek/internal/utils"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from worker...")
	workerCount := utils.GetEnvAsInt("WORKER_COUNT", 4, log)
	frameRoot := utils.GetEnv("FRAME_ROOT", "/tmp/pixelseek-frames", log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from worker...")
	assetRepo := repos.NewAssetRepo(thePG, log)
	keyframeRepo := repos.NewKeyframeRepo(thePG, log)
	vectorRefRepo := repos.NewVectorReferenceRepo(thePG, log)

	// Vector store
	qdrantCfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		log.Fatal("Qdrant config invalid", "error", err)
	}
	store, err := qdrant.Connect(log, qdrantCfg)
	if err != nil {
		log.Fatal("Qdrant connect failed", "error", err)
	}
	defer store.Close()

	// CLIP inference service
	clipCfg, err := clip.ResolveConfigFromEnv()
	if err != nil {
		log.Fatal("CLIP config invalid", "error", err)
	}
	vectorizer, err := clip.NewClient(log, clipCfg)
	if err != nil {
		log.Fatal("CLIP client init failed", "error", err)
	}

	// Services
	mediaTools := services.NewMediaToolsService(log)
	if err := mediaTools.AssertReady(context.Background()); err != nil {
		log.Fatal("Media tools not ready", "error", err)
	}
	indexService := services.NewVideoIndexService(log, qdrantCfg, store, vectorizer)
	if err := indexService.EnsureCollections(context.Background()); err != nil {
		// Collections may already be managed out of band; keep going.
		log.Warn("Could not ensure collections", "error", err)
	}
	pipeline := services.NewVideoPipelineService(
		log, thePG, assetRepo, keyframeRepo, vectorRefRepo, mediaTools, indexService, frameRoot,
	)

	// Task queue
	queueCfg, err := queue.ResolveConfigFromEnv()
	if err != nil {
		log.Fatal("Queue config invalid", "error", err)
	}
	tasks, err := queue.New(log, queueCfg)
	if err != nil {
		log.Fatal("Queue init failed", "error", err)
	}
	defer tasks.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Worker pool starting", "workers", workerCount)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		worker := i
		g.Go(func() error {
			wlog := log.With("worker", worker)
			for {
				assetID, err := tasks.DequeueAsset(gctx)
				if err != nil {
					if errors.Is(err, queue.ErrEmpty) {
						continue
					}
					if gctx.Err() != nil {
						return nil
					}
					wlog.Error("Dequeue failed", "error", err)
					continue
				}
				if err := pipeline.Process(gctx, assetID); err != nil {
					// The pipeline already persisted the failure on the asset.
					wlog.Error("Processing failed", "asset_id", assetID.String(), "error", err)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("Worker pool stopped", "error", err)
	}
	log.Info("Worker shut down")
}
