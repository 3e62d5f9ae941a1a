package httpserver

import (
	"time"

	"github.com/Clark-Hu/store-ratings/internal/domain"
	"github.com/Clark-Hu/store-ratings/internal/navigation"
	"github.com/Clark-Hu/store-ratings/internal/repository"
)

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type userDetailResponse struct {
	userResponse
	Stores []storeResponse `json:"stores,omitempty"`
}

type storeResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	OwnerID       *string   `json:"ownerId"`
	Active        bool      `json:"active"`
	AverageRating float64   `json:"averageRating"`
	TotalRatings  int64     `json:"totalRatings"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type storeWithRatingResponse struct {
	storeResponse
	UserRating *ratingResponse `json:"userRating"`
}

type ratingResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	StoreID   string    `json:"storeId"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type raterResponse struct {
	ratingResponse
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}

type aggregateResponse struct {
	StoreID       string  `json:"storeId"`
	AverageRating float64 `json:"averageRating"`
	TotalRatings  int64   `json:"totalRatings"`
}

type ratingWriteResponse struct {
	Rating ratingResponse    `json:"rating"`
	Store  aggregateResponse `json:"store"`
}

type sessionResponse struct {
	User       userResponse      `json:"user"`
	Navigation []navigation.Item `json:"navigation"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	sessionResponse
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Address:   u.Address,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toStoreResponse(st domain.Store) storeResponse {
	return storeResponse{
		ID:            st.ID,
		Name:          st.Name,
		Email:         st.Email,
		Address:       st.Address,
		OwnerID:       st.OwnerID,
		Active:        st.Active,
		AverageRating: st.AverageRating,
		TotalRatings:  st.TotalRatings,
		CreatedAt:     st.CreatedAt,
		UpdatedAt:     st.UpdatedAt,
	}
}

func toStoreResponses(stores []domain.Store) []storeResponse {
	out := make([]storeResponse, 0, len(stores))
	for _, st := range stores {
		out = append(out, toStoreResponse(st))
	}
	return out
}

func toRatingResponse(r domain.Rating) ratingResponse {
	return ratingResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		StoreID:   r.StoreID,
		Rating:    r.Value,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toRaterResponses(items []repository.RatingWithUser) []raterResponse {
	out := make([]raterResponse, 0, len(items))
	for _, item := range items {
		out = append(out, raterResponse{
			ratingResponse: toRatingResponse(item.Rating),
			UserName:       item.UserName,
			UserEmail:      item.UserEmail,
		})
	}
	return out
}

func toRatingWriteResponse(w repository.RatingWrite) ratingWriteResponse {
	return ratingWriteResponse{
		Rating: toRatingResponse(w.Rating),
		Store: aggregateResponse{
			StoreID:       w.Rating.StoreID,
			AverageRating: w.Aggregate.Average,
			TotalRatings:  w.Aggregate.Count,
		},
	}
}

func newSessionResponse(u domain.User) sessionResponse {
	return sessionResponse{
		User:       toUserResponse(u),
		Navigation: navigation.Items(u.Role),
	}
}
