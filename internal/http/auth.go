package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Clark-Hu/store-ratings/internal/auth"
	"github.com/Clark-Hu/store-ratings/internal/domain"
	"github.com/Clark-Hu/store-ratings/internal/repository"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Address  string `json:"address"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// handleRegister creates a self-service account. The role is always user.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	s.createUser(w, r, domain.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Address:  req.Address,
		Role:     domain.RoleUser,
	})
}

// createUser validates, hashes, and stores a new account, then writes the 201.
func (s *Server) createUser(w http.ResponseWriter, r *http.Request, input domain.NewUser) {
	input.Normalize()
	if err := input.Validate(); err != nil {
		respondValidation(w, err)
		return
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to create user")
		return
	}

	user, err := s.repo.Users.Create(r.Context(), repository.UserCreateParams{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		Address:      input.Address,
		Role:         input.Role,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			respondErrorDetails(w, http.StatusConflict, codeDuplicateEmail, "Email is already registered",
				map[string]string{"email": "is already registered"})
			return
		}
		s.respondInternal(w, r, err, "Failed to create user")
		return
	}

	w.Header().Set("Location", "/api/users/"+user.ID)
	respondJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		verr := &domain.ValidationError{}
		if email == "" {
			verr.Add("email", "is required")
		}
		if req.Password == "" {
			verr.Add("password", "is required")
		}
		respondValidation(w, verr)
		return
	}

	user, err := s.repo.Users.GetByEmail(r.Context(), email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.respondInternal(w, r, err, "Failed to sign in")
		return
	}
	if err != nil || auth.CheckPassword(user.PasswordHash, req.Password) != nil {
		respondError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid email or password")
		return
	}

	expiresAt := s.now().Add(time.Duration(s.cfg.SessionTTLMins) * time.Minute)
	session, err := s.repo.Sessions.Create(r.Context(), user.ID, expiresAt)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to sign in")
		return
	}
	token, err := s.issuer.Sign(session.ID, user.ID, string(user.Role), session.ExpiresAt)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to sign in")
		return
	}

	s.requestLogger(r).WithField("user_id", user.ID).Info("user signed in")
	respondJSON(w, http.StatusOK, loginResponse{
		Token:           token,
		ExpiresAt:       session.ExpiresAt,
		sessionResponse: newSessionResponse(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	if err := s.repo.Sessions.Revoke(r.Context(), sess.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.respondInternal(w, r, err, "Failed to sign out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	respondJSON(w, http.StatusOK, newSessionResponse(sess.User))
}

// handleChangePassword replaces the caller's password and signs out every
// other session.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	var req changePasswordRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	verr := &domain.ValidationError{}
	if req.CurrentPassword == "" {
		verr.Add("currentPassword", "is required")
	} else if auth.CheckPassword(sess.User.PasswordHash, req.CurrentPassword) != nil {
		verr.Add("currentPassword", "is incorrect")
	}
	if msg := domain.PasswordProblem(req.NewPassword); msg != "" {
		verr.Add("newPassword", msg)
	}
	if err := verr.OrNil(); err != nil {
		respondValidation(w, err)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to update password")
		return
	}
	if err := s.repo.Users.UpdatePassword(r.Context(), sess.User.ID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondUnauthorized(w)
			return
		}
		s.respondInternal(w, r, err, "Failed to update password")
		return
	}
	revoked, err := s.repo.Sessions.RevokeOthers(r.Context(), sess.User.ID, sess.ID)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to update password")
		return
	}

	s.requestLogger(r).WithField("revoked_sessions", revoked).Info("password changed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	respondJSON(w, http.StatusOK, newSessionResponse(sess.User).Navigation)
}
