package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/homefinder/apiserver/types"
)

// ListingRepository handles persistence for listings.
type ListingRepository struct {
	db *sql.DB
}

func NewListingRepository(db *sql.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

const listingColumns = `
	l.id, l.title, l.description, l.rooms, l.parking, l.bathrooms, l.street, l.lat, l.lng,
	l.image, l.published, l.user_id, l.category_id, l.price_band_id, l.created_at, l.updated_at`

func listingScanTargets(listing *types.Listing) []any {
	return []any{
		&listing.ID,
		&listing.Title,
		&listing.Description,
		&listing.Rooms,
		&listing.Parking,
		&listing.Bathrooms,
		&listing.Street,
		&listing.Lat,
		&listing.Lng,
		&listing.Image,
		&listing.Published,
		&listing.OwnerID,
		&listing.CategoryID,
		&listing.PriceBandID,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	}
}

func scanListing(row rowScanner) (types.Listing, error) {
	var listing types.Listing
	if err := row.Scan(listingScanTargets(&listing)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Listing{}, ErrNotFound
		}
		return types.Listing{}, err
	}
	return listing, nil
}

func scanListingDetail(row rowScanner) (types.ListingDetail, error) {
	var detail types.ListingDetail
	targets := append(
		listingScanTargets(&detail.Listing),
		&detail.Category.ID,
		&detail.Category.Name,
		&detail.PriceBand.ID,
		&detail.PriceBand.Name,
	)
	if err := row.Scan(targets...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ListingDetail{}, ErrNotFound
		}
		return types.ListingDetail{}, err
	}
	return detail, nil
}

func (r *ListingRepository) Get(ctx context.Context, id int) (types.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings l WHERE l.id = $1`
	return scanListing(r.db.QueryRowContext(ctx, query, id))
}

// GetWithCategoryAndPrice loads a listing joined with its category and price band.
func (r *ListingRepository) GetWithCategoryAndPrice(ctx context.Context, id int) (types.ListingDetail, error) {
	query := `
		SELECT ` + listingColumns + `, c.id, c.name, p.id, p.name
		FROM listings l
		JOIN categories c ON c.id = l.category_id
		JOIN price_bands p ON p.id = l.price_band_id
		WHERE l.id = $1`
	return scanListingDetail(r.db.QueryRowContext(ctx, query, id))
}

// ListByOwner returns one page of the owner's listings in creation order and
// the owner's total listing count.
func (r *ListingRepository) ListByOwner(ctx context.Context, ownerID, offset, limit int) ([]types.Listing, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	const countQuery = `SELECT COUNT(1) FROM listings WHERE user_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + listingColumns + `
		FROM listings l
		WHERE l.user_id = $1
		ORDER BY l.id
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, ownerID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	listings := make([]types.Listing, 0, limit)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, 0, err
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return listings, total, nil
}

// ListPublishedWithCategoryAndPrice returns every published listing with its
// category and price band.
func (r *ListingRepository) ListPublishedWithCategoryAndPrice(ctx context.Context) ([]types.ListingDetail, error) {
	query := `
		SELECT ` + listingColumns + `, c.id, c.name, p.id, p.name
		FROM listings l
		JOIN categories c ON c.id = l.category_id
		JOIN price_bands p ON p.id = l.price_band_id
		WHERE l.published
		ORDER BY l.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []types.ListingDetail
	for rows.Next() {
		detail, err := scanListingDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}

// Create stores a new draft listing: no image, not published.
func (r *ListingRepository) Create(ctx context.Context, listing types.Listing) (types.Listing, error) {
	now := time.Now()
	listing.CreatedAt = now
	listing.UpdatedAt = now
	listing.Image = ""
	listing.Published = false

	const query = `
		INSERT INTO listings (
			title, description, rooms, parking, bathrooms, street, lat, lng,
			image, published, user_id, category_id, price_band_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		return tx.QueryRowContext(
			ctx,
			query,
			listing.Title,
			listing.Description,
			listing.Rooms,
			listing.Parking,
			listing.Bathrooms,
			listing.Street,
			listing.Lat,
			listing.Lng,
			listing.Image,
			listing.Published,
			listing.OwnerID,
			listing.CategoryID,
			listing.PriceBandID,
			listing.CreatedAt,
			listing.UpdatedAt,
		).Scan(&listing.ID)
	})
	if err != nil {
		return types.Listing{}, translateError(err)
	}
	return listing, nil
}

// Update replaces the editable fields of a listing. Image and published flag
// are left untouched.
func (r *ListingRepository) Update(ctx context.Context, id int, fields types.ListingFields) (types.Listing, error) {
	var updated types.Listing
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			UPDATE listings l
			SET title = $1,
				description = $2,
				rooms = $3,
				parking = $4,
				bathrooms = $5,
				street = $6,
				lat = $7,
				lng = $8,
				category_id = $9,
				price_band_id = $10,
				updated_at = $11
			WHERE l.id = $12
			RETURNING ` + listingColumns
		var err error
		updated, err = scanListing(tx.QueryRowContext(
			ctx,
			query,
			fields.Title,
			fields.Description,
			fields.Rooms,
			fields.Parking,
			fields.Bathrooms,
			fields.Street,
			fields.Lat,
			fields.Lng,
			fields.CategoryID,
			fields.PriceBandID,
			time.Now(),
			id,
		))
		return err
	})
	if err != nil {
		return types.Listing{}, translateError(err)
	}
	return updated, nil
}

// AttachImage sets the image reference and publishes the listing in a single
// statement. The row is locked first so that concurrent attaches cannot both
// succeed.
func (r *ListingRepository) AttachImage(ctx context.Context, id int, image string) (types.Listing, error) {
	var updated types.Listing
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var published bool
		const lockQuery = `SELECT published FROM listings WHERE id = $1 FOR UPDATE`
		if err := tx.QueryRowContext(ctx, lockQuery, id).Scan(&published); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if published {
			return ErrAlreadyPublished
		}

		query := `
			UPDATE listings l
			SET image = $1,
				published = TRUE,
				updated_at = $2
			WHERE l.id = $3
			RETURNING ` + listingColumns
		var err error
		updated, err = scanListing(tx.QueryRowContext(ctx, query, image, time.Now(), id))
		return err
	})
	if err != nil {
		return types.Listing{}, err
	}
	return updated, nil
}

// Delete removes a listing together with its messages.
func (r *ListingRepository) Delete(ctx context.Context, id int) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE listing_id = $1`, id); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
