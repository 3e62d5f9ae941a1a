package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Clark-Hu/store-ratings/internal/auth"
	"github.com/Clark-Hu/store-ratings/internal/domain"
	"github.com/Clark-Hu/store-ratings/internal/repository"
)

// logRequests writes one log line per request once the response is done.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		entry := s.requestLogger(r).WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   status,
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
		})
		if status >= http.StatusInternalServerError {
			entry.Error("request completed")
			return
		}
		entry.Info("request completed")
	})
}

func (s *Server) requestLogger(r *http.Request) logrus.FieldLogger {
	logger := s.logger
	if id := middleware.GetReqID(r.Context()); id != "" {
		logger = logger.WithField("request_id", id)
	}
	if sess, ok := auth.FromContext(r.Context()); ok {
		logger = logger.WithField("user_id", sess.User.ID)
	}
	return logger
}

// authenticate resolves the bearer token to an active session. The user and
// role come from the database, not from the token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			s.respondUnauthorized(w)
			return
		}
		claims, err := s.issuer.Parse(token)
		if err != nil {
			s.respondUnauthorized(w)
			return
		}

		session, user, err := s.repo.Sessions.GetActive(r.Context(), claims.ID, s.now())
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.respondUnauthorized(w)
				return
			}
			s.respondInternal(w, r, err, "Failed to authenticate request")
			return
		}
		if session.UserID != claims.Subject {
			s.respondUnauthorized(w)
			return
		}

		ctx := auth.WithSession(r.Context(), auth.Session{ID: session.ID, User: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole rejects authenticated callers whose role is not in roles.
func requireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := auth.FromContext(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, codeUnauthorized, "Missing or invalid authentication information")
				return
			}
			for _, role := range roles {
				if sess.Role() == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(w, http.StatusForbidden, codeForbidden, "You do not have access to this resource")
		})
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}

// cors answers preflight requests and sets allow headers for listed origins.
type cors struct {
	allowedOrigins []string
	allowAll       bool
}

func newCORS(allowedOrigins []string) *cors {
	c := &cors{}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			c.allowAll = true
		}
		c.allowedOrigins = append(c.allowedOrigins, origin)
	}
	return c
}

func (c *cors) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && c.allowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Expose-Headers", "X-Request-Id")
			h.Set("Access-Control-Max-Age", "3600")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *cors) allowed(origin string) bool {
	if c.allowAll {
		return true
	}
	for _, allowed := range c.allowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}
