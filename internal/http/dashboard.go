package httpserver

import (
	"net/http"

	"github.com/Clark-Hu/store-ratings/internal/auth"
)

type adminDashboardResponse struct {
	TotalUsers   int64 `json:"totalUsers"`
	TotalStores  int64 `json:"totalStores"`
	TotalRatings int64 `json:"totalRatings"`
}

type ownedStoreResponse struct {
	storeResponse
	Raters []raterResponse `json:"raters"`
}

func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := s.repo.Users.Count(ctx)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to load dashboard")
		return
	}
	stores, err := s.repo.Stores.Count(ctx)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to load dashboard")
		return
	}
	ratings, err := s.repo.Ratings.CountAll(ctx)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to load dashboard")
		return
	}

	respondJSON(w, http.StatusOK, adminDashboardResponse{
		TotalUsers:   users,
		TotalStores:  stores,
		TotalRatings: ratings,
	})
}

// handleStoreDashboard lists the caller's stores with their aggregates and
// the users who rated each one.
func (s *Server) handleStoreDashboard(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	stores, err := s.repo.Stores.ListByOwner(r.Context(), sess.User.ID)
	if err != nil {
		s.respondInternal(w, r, err, "Failed to load store dashboard")
		return
	}

	out := make([]ownedStoreResponse, 0, len(stores))
	for _, st := range stores {
		raters, err := s.repo.Ratings.ListByStore(r.Context(), st.ID)
		if err != nil {
			s.respondInternal(w, r, err, "Failed to load store dashboard")
			return
		}
		out = append(out, ownedStoreResponse{
			storeResponse: toStoreResponse(st),
			Raters:        toRaterResponses(raters),
		})
	}
	respondJSON(w, http.StatusOK, struct {
		Stores []ownedStoreResponse `json:"stores"`
	}{Stores: out})
}
