package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/store-ratings/internal/domain"
	"github.com/Clark-Hu/store-ratings/internal/store"
)

// StoresRepository provides persistence helpers for store entities.
type StoresRepository struct {
	pool *pgxpool.Pool
}

const storeColumns = `
    s.id,
    s.name,
    s.email,
    s.address,
    s.owner_id,
    s.active,
    s.average_rating,
    s.total_ratings,
    s.created_at,
    s.updated_at
`

var storeSortColumns = map[string]string{
	"name":           "s.name",
	"email":          "s.email",
	"address":        "s.address",
	"average_rating": "s.average_rating",
	"total_ratings":  "s.total_ratings",
	"created_at":     "s.created_at",
}

// StoreParams bundles the writable store fields.
type StoreParams struct {
	Name    string
	Email   string
	Address string
	OwnerID *string
	Active  bool
}

// StoreListFilters encapsulates search, sort, and pagination options.
// ViewerID, when set, attaches that user's own rating to each row.
type StoreListFilters struct {
	Name     *string
	Address  *string
	Active   *bool
	OwnerID  *string
	ViewerID string
	Sort     Sort
	Page     Page
}

// StoreListItem is a store plus the viewer's rating of it, if any.
type StoreListItem struct {
	Store      domain.Store
	UserRating *domain.Rating
}

// StoreListResult returns one page and the total matching rows.
type StoreListResult struct {
	Items []StoreListItem
	Total int64
}

// Create inserts a new store after checking the owner reference.
func (r *StoresRepository) Create(ctx context.Context, params StoreParams) (domain.Store, error) {
	var created domain.Store
	err := store.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := checkOwner(ctx, tx, params.OwnerID); err != nil {
			return err
		}
		query := fmt.Sprintf(`
            INSERT INTO stores AS s (id, name, email, address, owner_id, active)
            VALUES ($1,$2,$3,$4,$5,$6)
            RETURNING %s
        `, storeColumns)
		var err error
		created, err = scanStore(tx.QueryRow(ctx, query, uuid.NewString(), params.Name, params.Email, params.Address, params.OwnerID, params.Active))
		return err
	})
	if err != nil {
		return domain.Store{}, err
	}
	return created, nil
}

// Update replaces the writable fields of a store. Aggregates are untouched.
func (r *StoresRepository) Update(ctx context.Context, id string, params StoreParams) (domain.Store, error) {
	var updated domain.Store
	err := store.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := checkOwner(ctx, tx, params.OwnerID); err != nil {
			return err
		}
		query := fmt.Sprintf(`
            UPDATE stores AS s
            SET name = $2, email = $3, address = $4, owner_id = $5, active = $6, updated_at = now()
            WHERE s.id = $1
            RETURNING %s
        `, storeColumns)
		var err error
		updated, err = scanStore(tx.QueryRow(ctx, query, id, params.Name, params.Email, params.Address, params.OwnerID, params.Active))
		return notFound(err, ErrNotFound)
	})
	if err != nil {
		return domain.Store{}, err
	}
	return updated, nil
}

// GetByID fetches a store by its identifier.
func (r *StoresRepository) GetByID(ctx context.Context, id string) (domain.Store, error) {
	query := fmt.Sprintf(`SELECT %s FROM stores s WHERE s.id = $1`, storeColumns)
	st, err := scanStore(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Store{}, notFound(err, ErrNotFound)
	}
	return st, nil
}

// List returns stores that match the provided filters.
func (r *StoresRepository) List(ctx context.Context, filters StoreListFilters) (StoreListResult, error) {
	page := filters.Page.Normalized()

	var counted whereBuilder
	applyStoreFilters(&counted, filters)
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stores s`+counted.String(), counted.args...).Scan(&total); err != nil {
		return StoreListResult{}, fmt.Errorf("count stores: %w", err)
	}

	var where whereBuilder
	viewer := where.arg(nullableUUID(filters.ViewerID))
	applyStoreFilters(&where, filters)

	query := fmt.Sprintf(`
        SELECT %s,
               r.id, r.rating, r.created_at, r.updated_at
        FROM stores s
        LEFT JOIN ratings r ON r.store_id = s.id AND r.user_id = %s::uuid
        %s
        ORDER BY %s, s.id
        LIMIT %d OFFSET %d
    `, storeColumns, viewer, where.String(), filters.Sort.clause(storeSortColumns, "s.name"), page.Limit, page.Offset)

	rows, err := r.pool.Query(ctx, query, where.args...)
	if err != nil {
		return StoreListResult{}, err
	}
	defer rows.Close()

	items := make([]StoreListItem, 0)
	for rows.Next() {
		item, err := scanStoreListItem(rows, filters.ViewerID)
		if err != nil {
			return StoreListResult{}, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return StoreListResult{}, err
	}
	return StoreListResult{Items: items, Total: total}, nil
}

// ListByOwner returns every store owned by ownerID ordered by name.
func (r *StoresRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Store, error) {
	query := fmt.Sprintf(`SELECT %s FROM stores s WHERE s.owner_id = $1 ORDER BY s.name, s.id`, storeColumns)
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0)
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

// Delete removes a store together with its ratings.
func (r *StoresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stores.
func (r *StoresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stores`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stores: %w", err)
	}
	return n, nil
}

func applyStoreFilters(where *whereBuilder, filters StoreListFilters) {
	where.addContains("s.name", filters.Name)
	where.addContains("s.address", filters.Address)
	if filters.Active != nil {
		where.add("s.active = %s", *filters.Active)
	}
	if filters.OwnerID != nil {
		where.add("s.owner_id = %s", *filters.OwnerID)
	}
}

// checkOwner verifies ownerID names a store_owner. The row is share-locked so
// the owner cannot be deleted or demoted before the write commits.
func checkOwner(ctx context.Context, q querier, ownerID *string) error {
	if ownerID == nil {
		return nil
	}
	var role string
	err := q.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 FOR SHARE`, *ownerID).Scan(&role)
	if err != nil {
		return notFound(err, ErrUserNotFound)
	}
	if domain.Role(role) != domain.RoleStoreOwner {
		return ErrInvalidOwner
	}
	return nil
}

func scanStore(row pgx.Row) (domain.Store, error) {
	var st domain.Store
	err := row.Scan(
		&st.ID,
		&st.Name,
		&st.Email,
		&st.Address,
		&st.OwnerID,
		&st.Active,
		&st.AverageRating,
		&st.TotalRatings,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return domain.Store{}, err
	}
	return st, nil
}

func scanStoreListItem(row pgx.Row, viewerID string) (StoreListItem, error) {
	var (
		item      StoreListItem
		ratingID  *string
		value     *int
		createdAt *time.Time
		updatedAt *time.Time
	)
	st := &item.Store
	err := row.Scan(
		&st.ID,
		&st.Name,
		&st.Email,
		&st.Address,
		&st.OwnerID,
		&st.Active,
		&st.AverageRating,
		&st.TotalRatings,
		&st.CreatedAt,
		&st.UpdatedAt,
		&ratingID,
		&value,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return StoreListItem{}, err
	}
	if ratingID != nil && value != nil && createdAt != nil && updatedAt != nil {
		item.UserRating = &domain.Rating{
			ID:        *ratingID,
			UserID:    viewerID,
			StoreID:   st.ID,
			Value:     *value,
			CreatedAt: *createdAt,
			UpdatedAt: *updatedAt,
		}
	}
	return item, nil
}

func nullableUUID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
