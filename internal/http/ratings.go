package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/store-ratings/internal/auth"
	"github.com/Clark-Hu/store-ratings/internal/domain"
	"github.com/Clark-Hu/store-ratings/internal/events"
	"github.com/Clark-Hu/store-ratings/internal/metrics"
	"github.com/Clark-Hu/store-ratings/internal/repository"
)

const publishTimeout = 2 * time.Second

type ratingRequest struct {
	Rating *int `json:"rating"`
}

type ratingCreateRequest struct {
	StoreID string `json:"storeId"`
	Rating  *int   `json:"rating"`
}

func validateRatingValue(value *int) (int, error) {
	if value == nil {
		verr := &domain.ValidationError{}
		verr.Add("rating", "is required")
		return 0, verr
	}
	if err := domain.ValidateScore(*value); err != nil {
		return 0, err
	}
	return *value, nil
}

// handleSubmitRating records the caller's score for a store, replacing any
// previous score. 201 means a new rating, 200 an overwrite.
func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	storeID, ok := idParam(r, "storeID")
	if !ok {
		respondNotFound(w)
		return
	}
	sess, _ := auth.FromContext(r.Context())

	var req ratingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	value, err := validateRatingValue(req.Rating)
	if err != nil {
		respondValidation(w, err)
		return
	}

	result, err := s.repo.Ratings.Upsert(r.Context(), repository.RatingParams{
		UserID:  sess.User.ID,
		StoreID: storeID,
		Value:   value,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStoreNotFound):
			respondNotFound(w)
		case errors.Is(err, repository.ErrUserNotFound):
			s.respondUnauthorized(w)
		default:
			s.respondInternal(w, r, err, "Failed to process rating")
		}
		return
	}

	status, kind := http.StatusOK, events.RatingUpdated
	if result.Inserted {
		status, kind = http.StatusCreated, events.RatingCreated
	}
	metrics.RecordRatingWrite(metrics.OpUpsert)
	s.publishRatingChange(r, kind, result)
	respondJSON(w, status, toRatingWriteResponse(result))
}

// handleCreateRating is the strict create path. A second rating for the
// same store is rejected with the existing rating id.
func (s *Server) handleCreateRating(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	var req ratingCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	verr := &domain.ValidationError{}
	storeID, err := uuid.Parse(req.StoreID)
	if err != nil {
		verr.Add("storeId", "must be a valid id")
	}
	value, err := validateRatingValue(req.Rating)
	if err != nil {
		var scoreErr *domain.ValidationError
		if errors.As(err, &scoreErr) {
			for field, msg := range scoreErr.Fields {
				verr.Add(field, msg)
			}
		}
	}
	if err := verr.OrNil(); err != nil {
		respondValidation(w, err)
		return
	}

	result, err := s.repo.Ratings.Create(r.Context(), repository.RatingParams{
		UserID:  sess.User.ID,
		StoreID: storeID.String(),
		Value:   value,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateRating):
			s.respondDuplicateRating(w, r, storeID.String(), sess.User.ID)
		case errors.Is(err, repository.ErrStoreNotFound):
			respondErrorDetails(w, http.StatusUnprocessableEntity, codeInvalidReference, "Store does not exist",
				map[string]string{"storeId": "does not exist"})
		case errors.Is(err, repository.ErrUserNotFound):
			s.respondUnauthorized(w)
		default:
			s.respondInternal(w, r, err, "Failed to create rating")
		}
		return
	}

	metrics.RecordRatingWrite(metrics.OpCreate)
	s.publishRatingChange(r, events.RatingCreated, result)
	w.Header().Set("Location", "/api/ratings/"+result.Rating.ID)
	respondJSON(w, http.StatusCreated, toRatingWriteResponse(result))
}

func (s *Server) respondDuplicateRating(w http.ResponseWriter, r *http.Request, storeID, userID string) {
	details := map[string]string{}
	if existing, err := s.repo.Ratings.Get(r.Context(), storeID, userID); err == nil {
		details["ratingId"] = existing.ID
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.requestLogger(r).WithError(err).Warn("lookup of existing rating failed")
	}
	respondErrorDetails(w, http.StatusConflict, codeDuplicateRating, "You have already rated this store", details)
}

func (s *Server) handleUpdateRating(w http.ResponseWriter, r *http.Request) {
	ratingID, ok := idParam(r, "ratingID")
	if !ok {
		respondNotFound(w)
		return
	}
	sess, _ := auth.FromContext(r.Context())

	var req ratingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	value, err := validateRatingValue(req.Rating)
	if err != nil {
		respondValidation(w, err)
		return
	}

	result, err := s.repo.Ratings.Update(r.Context(), ratingID, sess.User.ID, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrStoreNotFound) {
			respondNotFound(w)
			return
		}
		s.respondInternal(w, r, err, "Failed to update rating")
		return
	}

	metrics.RecordRatingWrite(metrics.OpUpdate)
	s.publishRatingChange(r, events.RatingUpdated, result)
	respondJSON(w, http.StatusOK, toRatingWriteResponse(result))
}

// handleDeleteRating removes the caller's rating. Admins may remove any.
func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	ratingID, ok := idParam(r, "ratingID")
	if !ok {
		respondNotFound(w)
		return
	}
	sess, _ := auth.FromContext(r.Context())

	result, err := s.repo.Ratings.Delete(r.Context(), ratingID, sess.User.ID, sess.Role() == domain.RoleAdmin)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondNotFound(w)
			return
		}
		s.respondInternal(w, r, err, "Failed to delete rating")
		return
	}

	metrics.RecordRatingWrite(metrics.OpDelete)
	s.publishRatingChange(r, events.RatingDeleted, result)
	respondJSON(w, http.StatusOK, toRatingWriteResponse(result).Store)
}

func (s *Server) handleGetMyRating(w http.ResponseWriter, r *http.Request) {
	storeID, ok := idParam(r, "storeID")
	if !ok {
		respondNotFound(w)
		return
	}
	sess, _ := auth.FromContext(r.Context())

	rating, err := s.repo.Ratings.Get(r.Context(), storeID, sess.User.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondNotFound(w)
			return
		}
		s.respondInternal(w, r, err, "Failed to fetch rating")
		return
	}
	respondJSON(w, http.StatusOK, toRatingResponse(rating))
}

// handleListStoreRatings lists every rating of a store with rater details.
// Only admins and the store's owner may see it.
func (s *Server) handleListStoreRatings(w http.ResponseWriter, r *http.Request) {
	storeID, ok := idParam(r, "storeID")
	if !ok {
		respondNotFound(w)
		return
	}
	sess, _ := auth.FromContext(r.Context())

	st, err := s.repo.Stores.GetByID(r.Context(), storeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondNotFound(w)
			return
		}
		s.respondInternal(w, r, err, "Failed to list ratings")
		return
	}
	isOwner := st.OwnerID != nil && *st.OwnerID == sess.User.ID
	if sess.Role() != domain.RoleAdmin && !isOwner {
		respondError(w, http.StatusForbidden, codeForbidden, "You do not have access to this resource")
		return
	}

	items, err := s.repo.Ratings.ListByStore(r.Context(), storeID)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to list ratings")
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Store   aggregateResponse `json:"store"`
		Ratings []raterResponse   `json:"ratings"`
	}{
		Store:   aggregateResponse{StoreID: st.ID, AverageRating: st.AverageRating, TotalRatings: st.TotalRatings},
		Ratings: toRaterResponses(items),
	})
}

// publishRatingChange emits the event after commit. Failures are logged and
// never surface to the client.
func (s *Server) publishRatingChange(r *http.Request, kind events.Kind, result repository.RatingWrite) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), publishTimeout)
	defer cancel()

	event := events.RatingChanged{
		Type:          kind,
		RatingID:      result.Rating.ID,
		StoreID:       result.Rating.StoreID,
		UserID:        result.Rating.UserID,
		Rating:        result.Rating.Value,
		AverageRating: result.Aggregate.Average,
		TotalRatings:  result.Aggregate.Count,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.requestLogger(r).WithError(err).WithField("event", string(kind)).Warn("publish rating event failed")
	}
}
