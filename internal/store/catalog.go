package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/homefinder/apiserver/types"
)

// CatalogRepository reads the seeded categories and price bands.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) ListCategories(ctx context.Context) ([]types.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []types.Category
	for rows.Next() {
		var c types.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *CatalogRepository) ListPriceBands(ctx context.Context) ([]types.PriceBand, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM price_bands ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bands []types.PriceBand
	for rows.Next() {
		var p types.PriceBand
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		bands = append(bands, p)
	}
	return bands, rows.Err()
}

func (r *CatalogRepository) GetCategory(ctx context.Context, id int) (types.Category, error) {
	var c types.Category
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Category{}, ErrNotFound
		}
		return types.Category{}, err
	}
	return c, nil
}

func (r *CatalogRepository) GetPriceBand(ctx context.Context, id int) (types.PriceBand, error) {
	var p types.PriceBand
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM price_bands WHERE id = $1`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PriceBand{}, ErrNotFound
		}
		return types.PriceBand{}, err
	}
	return p, nil
}
