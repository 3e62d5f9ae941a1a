package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/store-ratings/internal/domain"
	"github.com/Clark-Hu/store-ratings/internal/store"
)

// UsersRepository provides persistence helpers for user accounts.
type UsersRepository struct {
	pool *pgxpool.Pool
}

const userColumns = `
    id,
    name,
    email,
    password_hash,
    address,
    role,
    created_at,
    updated_at
`

var userSortColumns = map[string]string{
	"name":       "name",
	"email":      "email",
	"address":    "address",
	"role":       "role",
	"created_at": "created_at",
}

// UserCreateParams bundles the fields required to create a user.
type UserCreateParams struct {
	Name         string
	Email        string
	PasswordHash string
	Address      string
	Role         domain.Role
}

// UserListFilters encapsulates search, sort, and pagination options.
type UserListFilters struct {
	Name    *string
	Email   *string
	Address *string
	Role    *domain.Role
	Sort    Sort
	Page    Page
}

// UserListResult returns one page and the total matching rows.
type UserListResult struct {
	Items []domain.User
	Total int64
}

// Create inserts a new user and returns the stored entity.
func (r *UsersRepository) Create(ctx context.Context, params UserCreateParams) (domain.User, error) {
	query := fmt.Sprintf(`
        INSERT INTO users (id, name, email, password_hash, address, role)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING %s
    `, userColumns)

	row := r.pool.QueryRow(ctx, query, uuid.NewString(), params.Name, params.Email, params.PasswordHash, params.Address, string(params.Role))
	user, err := scanUser(row)
	if err != nil {
		if isConstraintViolation(err, pgUniqueViolation, usersEmailKey) {
			return domain.User{}, ErrDuplicateEmail
		}
		return domain.User{}, err
	}
	return user, nil
}

// GetByID fetches a user by identifier.
func (r *UsersRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.User{}, notFound(err, ErrNotFound)
	}
	return user, nil
}

// GetByEmail fetches a user by email, ignoring case.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE lower(email) = lower($1)`, userColumns)
	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		return domain.User{}, notFound(err, ErrNotFound)
	}
	return user, nil
}

// List returns users matching filters, ordered and paginated.
func (r *UsersRepository) List(ctx context.Context, filters UserListFilters) (UserListResult, error) {
	page := filters.Page.Normalized()

	var where whereBuilder
	where.addContains("name", filters.Name)
	where.addContains("email", filters.Email)
	where.addContains("address", filters.Address)
	if filters.Role != nil {
		where.add("role = %s", string(*filters.Role))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where.String(), where.args...).Scan(&total); err != nil {
		return UserListResult{}, fmt.Errorf("count users: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY %s, id LIMIT %d OFFSET %d`,
		userColumns, where.String(), filters.Sort.clause(userSortColumns, "name"), page.Limit, page.Offset)
	rows, err := r.pool.Query(ctx, query, where.args...)
	if err != nil {
		return UserListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return UserListResult{}, err
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return UserListResult{}, err
	}
	return UserListResult{Items: items, Total: total}, nil
}

// UpdatePassword replaces the stored password hash.
func (r *UsersRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user. Their ratings and sessions are removed with them,
// stores they owned lose the owner, and the aggregates of every store they
// rated are recomputed before the transaction commits.
func (r *UsersRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "users.Delete")
	defer func() { endSpan(span, err) }()

	return store.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		// Lock order is user then stores, matching rating writes.
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			return notFound(err, ErrNotFound)
		}

		rows, err := tx.Query(ctx, `
            SELECT s.id FROM stores s
            WHERE s.id IN (SELECT store_id FROM ratings WHERE user_id = $1)
            ORDER BY s.id
            FOR UPDATE OF s
        `, id)
		if err != nil {
			return fmt.Errorf("lock rated stores: %w", err)
		}
		storeIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("lock rated stores: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		for _, storeID := range storeIDs {
			if _, err := recomputeAggregate(ctx, tx, storeID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of registered users.
func (r *UsersRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		user domain.User
		role string
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Address,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	user.Role = domain.Role(role)
	return user, nil
}
