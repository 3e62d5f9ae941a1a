package domain

import (
	"strings"
	"time"
	"unicode"
)

// Role is the access level attached to a user account.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleStoreOwner Role = "store_owner"
	RoleUser       Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStoreOwner, RoleUser:
		return true
	}
	return false
}

// User is an account that can sign in, own stores, and rate them.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Address      string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	maxNameLen       = 60
	maxEmailLen      = 255
	maxAddressLen    = 400
	minPasswordLen   = 8
	maxPasswordLen   = 16
	passwordSpecials = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"
)

// NewUser is the validated input for creating a user. Password is plaintext
// and is hashed by the caller after validation succeeds.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Address  string
	Role     Role
}

// Normalize trims whitespace and lowercases the email.
func (u *NewUser) Normalize() {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Address = strings.TrimSpace(u.Address)
	u.Role = Role(strings.TrimSpace(string(u.Role)))
}

// Validate checks every field and reports all failures at once.
func (u NewUser) Validate() error {
	verr := &ValidationError{}
	validateName(verr, u.Name)
	validateEmail(verr, u.Email)
	validateAddress(verr, u.Address)
	if msg := PasswordProblem(u.Password); msg != "" {
		verr.Add("password", msg)
	}
	if !u.Role.Valid() {
		verr.Add("role", "must be one of admin, store_owner, user")
	}
	return verr.OrNil()
}

// PasswordProblem returns a description of why password is unacceptable, or
// the empty string when it is fine.
func PasswordProblem(password string) string {
	n := len([]rune(password))
	if n < minPasswordLen || n > maxPasswordLen {
		return "must be 8 to 16 characters"
	}
	var upper, special bool
	for _, r := range password {
		if unicode.IsUpper(r) {
			upper = true
		}
		if strings.ContainsRune(passwordSpecials, r) {
			special = true
		}
	}
	if !upper || !special {
		return "must contain an uppercase letter and a special character"
	}
	return ""
}
