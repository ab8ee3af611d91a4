package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/food-api/internal/config"
	"github.com/Brownie44l1/food-api/internal/handlers"
	"github.com/Brownie44l1/food-api/internal/imageloader"
	"github.com/Brownie44l1/food-api/internal/logger"
	"github.com/Brownie44l1/food-api/internal/metrics"
	"github.com/Brownie44l1/food-api/internal/model"
	"github.com/Brownie44l1/food-api/internal/nutrition"
	"github.com/Brownie44l1/food-api/internal/predict"
	"github.com/Brownie44l1/food-api/internal/preprocess"
	"github.com/Brownie44l1/food-api/internal/server"
	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg)
	metrics.Init(cfg)
	defer metrics.Close()

	log.Info().Str("path", cfg.NutritionDataPath).Msg("loading nutrition data")
	catalog, err := nutrition.Load(cfg.NutritionDataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load nutrition data")
	}
	log.Info().Int("entries", catalog.Len()).Msg("nutrition data loaded")

	log.Info().Str("path", cfg.ModelPath).Msg("loading model")
	modelServer, err := model.NewServer(cfg.ModelPath, cfg.ModelMetadataPath, model.Options{
		SharedLibraryPath: cfg.OnnxRuntimeLibPath,
		PoolSize:          cfg.ModelPoolSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize model server")
	}
	defer modelServer.Close()

	pre, err := preprocess.New(modelServer.Metadata.PreprocessConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure preprocessing")
	}

	loader := imageloader.New(
		imageloader.WithTimeout(cfg.FetchTimeout()),
		imageloader.WithMaxBytes(cfg.FetchMaxBytes),
		imageloader.WithMaxPixels(cfg.FetchMaxPixels),
	)
	svc := predict.NewService(loader, pre, modelServer, catalog)
	handler := handlers.NewHandler(svc, handlers.Info{
		Classes:        len(modelServer.Classes()),
		CatalogEntries: catalog.Len(),
	})
	srv := server.New(cfg, handler)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("received signal, shutting down gracefully")
	case err := <-serveErr:
		log.Error().Err(err).Msg("server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
