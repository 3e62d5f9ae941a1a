package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Clark-Hu/store-ratings/internal/auth"
	"github.com/Clark-Hu/store-ratings/internal/config"
	"github.com/Clark-Hu/store-ratings/internal/domain"
	"github.com/Clark-Hu/store-ratings/internal/events"
	"github.com/Clark-Hu/store-ratings/internal/metrics"
	"github.com/Clark-Hu/store-ratings/internal/repository"
	"github.com/Clark-Hu/store-ratings/internal/store"
)

const rootBanner = "Store rating API is running"

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	store   *store.Store
	repo    *repository.Repository
	issuer  *auth.Issuer
	events  events.Publisher
	limiter *rateLimiter
	logger  logrus.FieldLogger
	router  chi.Router
	httpSrv *http.Server
	now     func() time.Time
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, st *store.Store, repo *repository.Repository, publisher events.Publisher, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	s := &Server{
		cfg:     cfg,
		store:   st,
		repo:    repo,
		issuer:  auth.NewIssuer(cfg.JWTSecret),
		events:  publisher,
		limiter: newRateLimiter(cfg.RatingRateLimitRPS, cfg.RatingRateBurst),
		logger:  logger,
		now:     time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(metrics.InstrumentHandler)
	r.Use(middleware.Recoverer)
	r.Use(newCORS(cfg.CORSAllowedOrigins).Handler)
	s.router = r

	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Put("/auth/password", s.handleChangePassword)
			r.Get("/navigation", s.handleNavigation)

			r.Route("/stores", func(r chi.Router) {
				r.Get("/", s.handleListStores)
				r.With(requireRole(domain.RoleAdmin)).Post("/", s.handleCreateStore)
				r.Route("/{storeID}", func(r chi.Router) {
					r.Get("/", s.handleGetStore)
					r.With(requireRole(domain.RoleAdmin)).Put("/", s.handleUpdateStore)
					r.With(requireRole(domain.RoleAdmin)).Delete("/", s.handleDeleteStore)
					r.With(s.limiter.Handler).Post("/ratings", s.handleSubmitRating)
					r.Get("/ratings", s.handleListStoreRatings)
					r.Get("/ratings/mine", s.handleGetMyRating)
				})
			})

			r.Route("/ratings", func(r chi.Router) {
				r.Use(s.limiter.Handler)
				r.Post("/", s.handleCreateRating)
				r.Put("/{ratingID}", s.handleUpdateRating)
				r.Delete("/{ratingID}", s.handleDeleteRating)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(requireRole(domain.RoleAdmin))
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Get("/{userID}", s.handleGetUser)
				r.Delete("/{userID}", s.handleDeleteUser)
			})

			r.With(requireRole(domain.RoleAdmin)).Get("/dashboard", s.handleAdminDashboard)
			r.With(requireRole(domain.RoleStoreOwner)).Get("/store-dashboard", s.handleStoreDashboard)
		})
	})
}

// Start boots the HTTP server asynchronously.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.httpSrv.Addr).Info("http: listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rootBanner))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.store == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	if err := s.store.HealthCheck(ctx); err != nil {
		s.requestLogger(r).WithError(err).Warn("health check failed")
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
