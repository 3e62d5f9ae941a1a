package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Clark-Hu/store-ratings/internal/auth"
	"github.com/Clark-Hu/store-ratings/internal/domain"
	"github.com/Clark-Hu/store-ratings/internal/repository"
)

type storeRequest struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Address string  `json:"address"`
	OwnerID *string `json:"ownerId"`
	Active  *bool   `json:"active"`
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	filters, err := buildStoreFilters(r.URL.Query())
	if err != nil {
		respondValidation(w, err)
		return
	}
	filters.ViewerID = sess.User.ID

	result, err := s.repo.Stores.List(r.Context(), filters)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to list stores")
		return
	}

	page := filters.Page.Normalized()
	items := make([]storeWithRatingResponse, 0, len(result.Items))
	for _, item := range result.Items {
		resp := storeWithRatingResponse{storeResponse: toStoreResponse(item.Store)}
		if item.UserRating != nil {
			rating := toRatingResponse(*item.UserRating)
			resp.UserRating = &rating
		}
		items = append(items, resp)
	}
	respondJSON(w, http.StatusOK, listResponse[storeWithRatingResponse]{
		Items:  items,
		Total:  result.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func buildStoreFilters(query url.Values) (repository.StoreListFilters, error) {
	verr := &domain.ValidationError{}
	filters := repository.StoreListFilters{
		Name:    optionalString(query.Get("name")),
		Address: optionalString(query.Get("address")),
	}
	if raw := strings.TrimSpace(query.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			verr.Add("active", "must be true or false")
		} else {
			filters.Active = &active
		}
	}
	if raw := optionalString(query.Get("ownerId")); raw != nil {
		if _, err := uuid.Parse(*raw); err != nil {
			verr.Add("ownerId", "must be a valid id")
		} else {
			filters.OwnerID = raw
		}
	}
	filters.Sort = repository.Sort{
		Field: parseSortField(verr, query.Get("sort"), "name", "email", "address", "average_rating", "total_ratings", "created_at"),
		Desc:  parseOrder(verr, query.Get("order")),
	}
	filters.Page = repository.Page{
		Limit:  parseNonNegativeInt(verr, "limit", query.Get("limit")),
		Offset: parseNonNegativeInt(verr, "offset", query.Get("offset")),
	}
	return filters, verr.OrNil()
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	params, err := storeParamsFrom(req, true)
	if err != nil {
		respondValidation(w, err)
		return
	}

	st, err := s.repo.Stores.Create(r.Context(), params)
	if err != nil {
		s.respondStoreWriteError(w, r, err, "Failed to create store")
		return
	}
	w.Header().Set("Location", "/api/stores/"+st.ID)
	respondJSON(w, http.StatusCreated, toStoreResponse(st))
}

// handleGetStore returns the store and the caller's rating of it, if any.
func (s *Server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "storeID")
	if !ok {
		respondNotFound(w)
		return
	}
	sess, _ := auth.FromContext(r.Context())

	st, err := s.repo.Stores.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondNotFound(w)
			return
		}
		s.respondInternal(w, r, err, "Failed to fetch store")
		return
	}

	resp := storeWithRatingResponse{storeResponse: toStoreResponse(st)}
	rating, err := s.repo.Ratings.Get(r.Context(), st.ID, sess.User.ID)
	switch {
	case err == nil:
		rr := toRatingResponse(rating)
		resp.UserRating = &rr
	case !errors.Is(err, repository.ErrNotFound):
		s.respondInternal(w, r, err, "Failed to fetch store")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleUpdateStore replaces the editable fields. An omitted active flag
// keeps the current value.
func (s *Server) handleUpdateStore(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "storeID")
	if !ok {
		respondNotFound(w)
		return
	}

	var req storeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	existing, err := s.repo.Stores.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondNotFound(w)
			return
		}
		s.respondInternal(w, r, err, "Failed to update store")
		return
	}

	params, err := storeParamsFrom(req, existing.Active)
	if err != nil {
		respondValidation(w, err)
		return
	}

	st, err := s.repo.Stores.Update(r.Context(), id, params)
	if err != nil {
		s.respondStoreWriteError(w, r, err, "Failed to update store")
		return
	}
	respondJSON(w, http.StatusOK, toStoreResponse(st))
}

func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "storeID")
	if !ok {
		respondNotFound(w)
		return
	}
	if err := s.repo.Stores.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondNotFound(w)
			return
		}
		s.respondInternal(w, r, err, "Failed to delete store")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func storeParamsFrom(req storeRequest, defaultActive bool) (repository.StoreParams, error) {
	input := domain.NewStore{
		Name:    req.Name,
		Email:   req.Email,
		Address: req.Address,
		OwnerID: req.OwnerID,
		Active:  defaultActive,
	}
	if req.Active != nil {
		input.Active = *req.Active
	}
	input.Normalize()

	err := input.Validate()
	if input.OwnerID != nil {
		if _, perr := uuid.Parse(*input.OwnerID); perr != nil {
			verr, _ := err.(*domain.ValidationError)
			if verr == nil {
				verr = &domain.ValidationError{}
			}
			verr.Add("ownerId", "must be a valid id")
			err = verr
		}
	}
	if err != nil {
		return repository.StoreParams{}, err
	}

	return repository.StoreParams{
		Name:    input.Name,
		Email:   input.Email,
		Address: input.Address,
		OwnerID: input.OwnerID,
		Active:  input.Active,
	}, nil
}

func (s *Server) respondStoreWriteError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondNotFound(w)
	case errors.Is(err, repository.ErrUserNotFound):
		respondErrorDetails(w, http.StatusUnprocessableEntity, codeInvalidReference, "Owner does not exist",
			map[string]string{"ownerId": "does not exist"})
	case errors.Is(err, repository.ErrInvalidOwner):
		respondErrorDetails(w, http.StatusUnprocessableEntity, codeInvalidReference, "Owner must have the store_owner role",
			map[string]string{"ownerId": "must have the store_owner role"})
	default:
		s.respondInternal(w, r, err, message)
	}
}
