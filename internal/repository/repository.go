package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Clark-Hu/store-ratings/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateRating is returned when the user already rated the store.
	ErrDuplicateRating = errors.New("repository: rating already exists for user and store")
	// ErrDuplicateEmail is returned when another account uses the email.
	ErrDuplicateEmail = errors.New("repository: email already registered")
	// ErrStoreNotFound is returned when a referenced store does not exist.
	ErrStoreNotFound = errors.New("repository: referenced store not found")
	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("repository: referenced user not found")
	// ErrInvalidOwner is returned when a store owner lacks the store_owner role.
	ErrInvalidOwner = errors.New("repository: owner must have the store_owner role")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	ratingsUserStoreKey = "ratings_user_store_key"
	usersEmailKey       = "users_email_key"
)

var tracer = otel.Tracer("github.com/Clark-Hu/store-ratings/internal/repository")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Users    *UsersRepository
	Stores   *StoresRepository
	Ratings  *RatingsRepository
	Sessions *SessionsRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Users:    &UsersRepository{pool: pool},
		Stores:   &StoresRepository{pool: pool},
		Ratings:  &RatingsRepository{pool: pool},
		Sessions: &SessionsRepository{pool: pool},
	}
}

func isConstraintViolation(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == code && (constraint == "" || pgErr.ConstraintName == constraint)
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
