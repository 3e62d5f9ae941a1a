package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Clark-Hu/store-ratings/internal/domain"
	"github.com/Clark-Hu/store-ratings/internal/store"
)

// RatingsRepository provides helpers for store ratings. Every write also
// refreshes the owning store's cached aggregate in the same transaction.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

// RatingParams captures the payload required to write a rating.
type RatingParams struct {
	UserID  string
	StoreID string
	Value   int
}

// RatingWrite is the outcome of a rating write.
type RatingWrite struct {
	Rating    domain.Rating
	Aggregate domain.RatingAggregate
	Inserted  bool
}

// RatingWithUser is a rating joined with the rater's public fields.
type RatingWithUser struct {
	Rating    domain.Rating
	UserName  string
	UserEmail string
}

const ratingColumns = `id, user_id, store_id, rating, created_at, updated_at`

// Create inserts a rating and fails with ErrDuplicateRating when the user has
// already rated the store. The unique constraint decides, not a pre-check.
func (r *RatingsRepository) Create(ctx context.Context, params RatingParams) (result RatingWrite, err error) {
	ctx, span := r.startSpan(ctx, "ratings.Create", params.StoreID, params.UserID)
	defer func() { endSpan(span, err) }()

	err = store.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockForRating(ctx, tx, params.UserID, params.StoreID); err != nil {
			return err
		}
		query := `
            INSERT INTO ratings (id, user_id, store_id, rating)
            VALUES ($1,$2,$3,$4)
            RETURNING ` + ratingColumns
		rating, err := scanRating(tx.QueryRow(ctx, query, uuid.NewString(), params.UserID, params.StoreID, params.Value))
		if err != nil {
			if isConstraintViolation(err, pgUniqueViolation, ratingsUserStoreKey) {
				return ErrDuplicateRating
			}
			return err
		}
		agg, err := recomputeAggregate(ctx, tx, params.StoreID)
		if err != nil {
			return err
		}
		result = RatingWrite{Rating: rating, Aggregate: agg, Inserted: true}
		return nil
	})
	if err != nil {
		return RatingWrite{}, err
	}
	return result, nil
}

// Upsert inserts or updates the user's rating for a store and indicates
// whether it was newly created.
func (r *RatingsRepository) Upsert(ctx context.Context, params RatingParams) (result RatingWrite, err error) {
	ctx, span := r.startSpan(ctx, "ratings.Upsert", params.StoreID, params.UserID)
	defer func() { endSpan(span, err) }()

	err = store.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockForRating(ctx, tx, params.UserID, params.StoreID); err != nil {
			return err
		}
		query := `
            INSERT INTO ratings (id, user_id, store_id, rating)
            VALUES ($1,$2,$3,$4)
            ON CONFLICT ON CONSTRAINT ratings_user_store_key
            DO UPDATE SET rating = EXCLUDED.rating, updated_at = now()
            RETURNING ` + ratingColumns + `, (xmax = 0) AS inserted`

		var (
			rating   domain.Rating
			inserted bool
		)
		err := tx.QueryRow(ctx, query, uuid.NewString(), params.UserID, params.StoreID, params.Value).Scan(
			&rating.ID,
			&rating.UserID,
			&rating.StoreID,
			&rating.Value,
			&rating.CreatedAt,
			&rating.UpdatedAt,
			&inserted,
		)
		if err != nil {
			return err
		}
		agg, err := recomputeAggregate(ctx, tx, params.StoreID)
		if err != nil {
			return err
		}
		result = RatingWrite{Rating: rating, Aggregate: agg, Inserted: inserted}
		return nil
	})
	if err != nil {
		return RatingWrite{}, err
	}
	return result, nil
}

// Update overwrites the score of a rating owned by userID.
func (r *RatingsRepository) Update(ctx context.Context, ratingID, userID string, value int) (result RatingWrite, err error) {
	existing, err := r.GetByID(ctx, ratingID)
	if err != nil {
		return RatingWrite{}, err
	}
	if existing.UserID != userID {
		return RatingWrite{}, ErrNotFound
	}

	ctx, span := r.startSpan(ctx, "ratings.Update", existing.StoreID, userID)
	defer func() { endSpan(span, err) }()

	err = store.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockForRating(ctx, tx, userID, existing.StoreID); err != nil {
			return err
		}
		query := `
            UPDATE ratings SET rating = $3, updated_at = now()
            WHERE id = $1 AND user_id = $2
            RETURNING ` + ratingColumns
		rating, err := scanRating(tx.QueryRow(ctx, query, ratingID, userID, value))
		if err != nil {
			return notFound(err, ErrNotFound)
		}
		agg, err := recomputeAggregate(ctx, tx, rating.StoreID)
		if err != nil {
			return err
		}
		result = RatingWrite{Rating: rating, Aggregate: agg}
		return nil
	})
	if err != nil {
		return RatingWrite{}, err
	}
	return result, nil
}

// Delete removes a rating. Unless asAdmin is set, only the rater may delete it.
func (r *RatingsRepository) Delete(ctx context.Context, ratingID, userID string, asAdmin bool) (result RatingWrite, err error) {
	existing, err := r.GetByID(ctx, ratingID)
	if err != nil {
		return RatingWrite{}, err
	}
	if !asAdmin && existing.UserID != userID {
		return RatingWrite{}, ErrNotFound
	}

	ctx, span := r.startSpan(ctx, "ratings.Delete", existing.StoreID, existing.UserID)
	defer func() { endSpan(span, err) }()

	err = store.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockForRating(ctx, tx, existing.UserID, existing.StoreID); err != nil {
			if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrStoreNotFound) {
				return ErrNotFound
			}
			return err
		}
		rating, err := scanRating(tx.QueryRow(ctx, `DELETE FROM ratings WHERE id = $1 RETURNING `+ratingColumns, ratingID))
		if err != nil {
			return notFound(err, ErrNotFound)
		}
		agg, err := recomputeAggregate(ctx, tx, rating.StoreID)
		if err != nil {
			return err
		}
		result = RatingWrite{Rating: rating, Aggregate: agg}
		return nil
	})
	if err != nil {
		return RatingWrite{}, err
	}
	return result, nil
}

// Aggregate returns the rating average and count for a store computed from
// the ratings table.
func (r *RatingsRepository) Aggregate(ctx context.Context, storeID string) (domain.RatingAggregate, error) {
	const query = `
        SELECT COALESCE(AVG(rating), 0)::float8 AS average,
               COUNT(*)::int8 AS count
        FROM ratings
        WHERE store_id = $1
    `

	var agg domain.RatingAggregate
	err := r.pool.QueryRow(ctx, query, storeID).Scan(&agg.Average, &agg.Count)
	if err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	return agg, nil
}

// Get retrieves the rating a user gave a store.
func (r *RatingsRepository) Get(ctx context.Context, storeID, userID string) (domain.Rating, error) {
	query := `SELECT ` + ratingColumns + ` FROM ratings WHERE store_id = $1 AND user_id = $2`
	rating, err := scanRating(r.pool.QueryRow(ctx, query, storeID, userID))
	if err != nil {
		return domain.Rating{}, notFound(err, ErrNotFound)
	}
	return rating, nil
}

// GetByID retrieves a rating by identifier.
func (r *RatingsRepository) GetByID(ctx context.Context, id string) (domain.Rating, error) {
	query := `SELECT ` + ratingColumns + ` FROM ratings WHERE id = $1`
	rating, err := scanRating(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Rating{}, notFound(err, ErrNotFound)
	}
	return rating, nil
}

// ListByStore returns every rating for a store with rater details, newest first.
func (r *RatingsRepository) ListByStore(ctx context.Context, storeID string) ([]RatingWithUser, error) {
	const query = `
        SELECT r.id, r.user_id, r.store_id, r.rating, r.created_at, r.updated_at,
               u.name, u.email
        FROM ratings r
        JOIN users u ON u.id = r.user_id
        WHERE r.store_id = $1
        ORDER BY r.updated_at DESC, r.id
    `
	rows, err := r.pool.Query(ctx, query, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RatingWithUser, 0)
	for rows.Next() {
		var item RatingWithUser
		rt := &item.Rating
		if err := rows.Scan(&rt.ID, &rt.UserID, &rt.StoreID, &rt.Value, &rt.CreatedAt, &rt.UpdatedAt, &item.UserName, &item.UserEmail); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountAll returns the number of ratings across all stores.
func (r *RatingsRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ratings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ratings: %w", err)
	}
	return n, nil
}

func (r *RatingsRepository) startSpan(ctx context.Context, name, storeID, userID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("store.id", storeID),
		attribute.String("user.id", userID),
	))
}

// lockForRating share-locks the rater and exclusively locks the store row.
// Holding the store lock serializes rating writes per store, so the
// aggregate computed afterwards sees every committed rating.
func lockForRating(ctx context.Context, tx pgx.Tx, userID, storeID string) error {
	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR KEY SHARE`, userID).Scan(&id); err != nil {
		return notFound(err, ErrUserNotFound)
	}
	if err := tx.QueryRow(ctx, `SELECT id FROM stores WHERE id = $1 FOR UPDATE`, storeID).Scan(&id); err != nil {
		return notFound(err, ErrStoreNotFound)
	}
	return nil
}

// recomputeAggregate rewrites the store's cached average and count from the
// ratings table. Callers must hold the store row lock.
func recomputeAggregate(ctx context.Context, q querier, storeID string) (domain.RatingAggregate, error) {
	const query = `
        UPDATE stores s
        SET average_rating = agg.average,
            total_ratings = agg.total
        FROM (
            SELECT COALESCE(AVG(rating), 0)::float8 AS average,
                   COUNT(*)::int AS total
            FROM ratings
            WHERE store_id = $1
        ) agg
        WHERE s.id = $1
        RETURNING s.average_rating, s.total_ratings
    `
	var agg domain.RatingAggregate
	if err := q.QueryRow(ctx, query, storeID).Scan(&agg.Average, &agg.Count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingAggregate{}, ErrStoreNotFound
		}
		return domain.RatingAggregate{}, fmt.Errorf("recompute aggregate: %w", err)
	}
	return agg, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var rating domain.Rating
	err := row.Scan(
		&rating.ID,
		&rating.UserID,
		&rating.StoreID,
		&rating.Value,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	if err != nil {
		return domain.Rating{}, err
	}
	return rating, nil
}
