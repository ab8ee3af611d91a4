package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Brownie44l1/food-api/internal/config"
	"github.com/Brownie44l1/food-api/internal/handlers"
	"github.com/Brownie44l1/food-api/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Server struct {
	httpServer *http.Server
	router     *gin.Engine
}

// NewRouter wires the middleware chain and routes around h.
func NewRouter(cfg *config.Config, h *handlers.Handler) *gin.Engine {
	if cfg.AppEnv == "prod" || cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.HTTPLogger(),
		middleware.Recovery(),
		middleware.Cors(),
	)

	router.GET("/health", h.Health)
	router.POST("/predict",
		middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		middleware.BodyLimit(cfg.MaxRequestBytes),
		h.Predict,
	)
	return router
}

func New(cfg *config.Config, h *handlers.Handler) *Server {
	router := NewRouter(cfg, h)
	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              cfg.Address(),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// covers a full fetch plus inference
			WriteTimeout:   cfg.FetchTimeout() + 30*time.Second,
			MaxHeaderBytes: 1 << 20,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run() error {
	log.Info().Str("address", s.httpServer.Addr).Msg("server is running")
	log.Info().Msg("endpoints: GET /health, POST /predict")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")
	return s.httpServer.Shutdown(ctx)
}
