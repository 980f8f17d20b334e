package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/simple-deposit/pkg/simpledeposit"
)

// Server wraps the deposit service for HTTP access
type Server struct {
	service   simpledeposit.Service
	tokenAuth *jwtauth.JWTAuth
}

// NewServer creates a new HTTP server wrapper. A nil tokenAuth mounts the
// header-based identity middleware instead of JWT verification.
func NewServer(service simpledeposit.Service, tokenAuth *jwtauth.JWTAuth) *Server {
	return &Server{service: service, tokenAuth: tokenAuth}
}

// Routes sets up the HTTP routes
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.healthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		if s.tokenAuth != nil {
			r.Use(jwtauth.Verifier(s.tokenAuth))
			r.Use(JWTIdentity)
		} else {
			r.Use(HeaderIdentity)
		}
		r.Mount("/", NewDepositHandler(s.service).Routes())
	})

	return r
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// RunReconcileLoop runs reconcile passes on a fixed interval until the
// context is cancelled. One pass runs immediately on startup so restarts
// pick up stale pending deposits without waiting a full interval.
func RunReconcileLoop(ctx context.Context, svc simpledeposit.Service, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := svc.PollArchive(ctx)
		if err != nil {
			logger.Error("reconcile pass finished with errors", "error", err)
		}
		if result != nil && result.Polled > 0 {
			logger.Info("reconcile pass",
				"polled", result.Polled,
				"deposited", result.Deposited,
				"failed", result.Failed,
				"still_pending", result.StillPending)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
