package domain

import (
	"fmt"
	"time"
)

const (
	MinScore = 1
	MaxScore = 5
)

// Rating represents a single user's score for a store. A user holds at most
// one rating per store.
type Rating struct {
	ID        string
	UserID    string
	StoreID   string
	Value     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatingAggregate provides average and count for a store's ratings.
type RatingAggregate struct {
	Average float64
	Count   int64
}

// ValidateScore rejects scores outside 1..5.
func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		verr := &ValidationError{}
		verr.Add("rating", fmt.Sprintf("must be an integer between %d and %d", MinScore, MaxScore))
		return verr
	}
	return nil
}
