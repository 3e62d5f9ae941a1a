package httpserver

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/Clark-Hu/store-ratings/internal/auth"
	"github.com/Clark-Hu/store-ratings/internal/domain"
	"github.com/Clark-Hu/store-ratings/internal/repository"
)

type userCreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Address  string `json:"address"`
	Role     string `json:"role"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	filters, err := buildUserFilters(r.URL.Query())
	if err != nil {
		respondValidation(w, err)
		return
	}

	result, err := s.repo.Users.List(r.Context(), filters)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to list users")
		return
	}

	page := filters.Page.Normalized()
	items := make([]userResponse, 0, len(result.Items))
	for _, u := range result.Items {
		items = append(items, toUserResponse(u))
	}
	respondJSON(w, http.StatusOK, listResponse[userResponse]{
		Items:  items,
		Total:  result.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func buildUserFilters(query url.Values) (repository.UserListFilters, error) {
	verr := &domain.ValidationError{}
	filters := repository.UserListFilters{
		Name:    optionalString(query.Get("name")),
		Email:   optionalString(query.Get("email")),
		Address: optionalString(query.Get("address")),
	}
	if raw := optionalString(query.Get("role")); raw != nil {
		role := domain.Role(*raw)
		if !role.Valid() {
			verr.Add("role", "must be one of admin, store_owner, user")
		}
		filters.Role = &role
	}
	filters.Sort = repository.Sort{
		Field: parseSortField(verr, query.Get("sort"), "name", "email", "address", "role", "created_at"),
		Desc:  parseOrder(verr, query.Get("order")),
	}
	filters.Page = repository.Page{
		Limit:  parseNonNegativeInt(verr, "limit", query.Get("limit")),
		Offset: parseNonNegativeInt(verr, "offset", query.Get("offset")),
	}
	return filters, verr.OrNil()
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	s.createUser(w, r, domain.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Address:  req.Address,
		Role:     domain.Role(req.Role),
	})
}

// handleGetUser returns a user. Store owners also get their stores with
// current aggregates.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "userID")
	if !ok {
		respondNotFound(w)
		return
	}

	user, err := s.repo.Users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondNotFound(w)
			return
		}
		s.respondInternal(w, r, err, "Failed to fetch user")
		return
	}

	resp := userDetailResponse{userResponse: toUserResponse(user)}
	if user.Role == domain.RoleStoreOwner {
		stores, err := s.repo.Stores.ListByOwner(r.Context(), user.ID)
		if err != nil {
			s.respondInternal(w, r, err, "Failed to fetch user")
			return
		}
		resp.Stores = toStoreResponses(stores)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "userID")
	if !ok {
		respondNotFound(w)
		return
	}
	if sess, _ := auth.FromContext(r.Context()); sess.User.ID == id {
		respondError(w, http.StatusForbidden, codeForbidden, "Administrators cannot delete their own account")
		return
	}

	if err := s.repo.Users.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondNotFound(w)
			return
		}
		s.respondInternal(w, r, err, "Failed to delete user")
		return
	}
	s.requestLogger(r).WithField("deleted_user_id", id).Info("user deleted")
	w.WriteHeader(http.StatusNoContent)
}
