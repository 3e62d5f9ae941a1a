package domain

import (
	"regexp"
	"strings"
	"time"
)

// Store is a rateable business. AverageRating and TotalRatings are derived
// from the ratings table and recomputed on every rating write.
type Store struct {
	ID            string
	Name          string
	Email         string
	Address       string
	OwnerID       *string
	Active        bool
	AverageRating float64
	TotalRatings  int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// emailPattern is deliberately loose: word characters, optional dot or dash
// separated segments, and a 2-3 letter final label.
var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// ValidEmail reports whether email matches the accepted address pattern.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NewStore is the validated input for creating or replacing a store.
type NewStore struct {
	Name    string
	Email   string
	Address string
	OwnerID *string
	Active  bool
}

// Normalize trims whitespace and drops an empty owner reference.
func (s *NewStore) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Address = strings.TrimSpace(s.Address)
	if s.OwnerID != nil {
		owner := strings.TrimSpace(*s.OwnerID)
		if owner == "" {
			s.OwnerID = nil
		} else {
			s.OwnerID = &owner
		}
	}
}

// Validate checks the store fields. Owner existence is checked by the
// repository inside the write transaction.
func (s NewStore) Validate() error {
	verr := &ValidationError{}
	validateName(verr, s.Name)
	validateEmail(verr, s.Email)
	validateAddress(verr, s.Address)
	return verr.OrNil()
}

func validateName(verr *ValidationError, name string) {
	switch {
	case name == "":
		verr.Add("name", "is required")
	case len([]rune(name)) > maxNameLen:
		verr.Add("name", "must be at most 60 characters")
	}
}

func validateEmail(verr *ValidationError, email string) {
	switch {
	case email == "":
		verr.Add("email", "is required")
	case len([]rune(email)) > maxEmailLen:
		verr.Add("email", "must be at most 255 characters")
	case !ValidEmail(email):
		verr.Add("email", "please enter a valid email")
	}
}

func validateAddress(verr *ValidationError, address string) {
	if len([]rune(address)) > maxAddressLen {
		verr.Add("address", "must be at most 400 characters")
	}
}
