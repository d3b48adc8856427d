package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"notarypro/internal/auth"
)

type RouterConfig struct {
	Documents      *DocumentHandler
	Verifier       *auth.Verifier
	Health         http.Handler
	VerifyLimiter  func(http.Handler) http.Handler
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Health != nil {
		r.Method(http.MethodGet, "/health", cfg.Health)
	}

	r.Route("/api/notary", func(r chi.Router) {
		r.Use(cfg.Verifier.Identify)
		cfg.Documents.Routes(r, cfg.VerifyLimiter)
	})

	return r
}
