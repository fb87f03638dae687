package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads products from the shared products table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, sku, COALESCE(upc, ''), name, COALESCE(price, 0)`

// FindByUPC resolves an active product by barcode.
func (r *Repository) FindByUPC(ctx context.Context, upc string) (Product, error) {
	return r.one(ctx, `SELECT `+productColumns+` FROM products WHERE upc = $1 AND deleted_at IS NULL LIMIT 1`, upc)
}

// FindBySKU resolves an active product by SKU, case-insensitively.
func (r *Repository) FindBySKU(ctx context.Context, sku string) (Product, error) {
	return r.one(ctx, `SELECT `+productColumns+` FROM products WHERE UPPER(sku) = UPPER($1) AND deleted_at IS NULL LIMIT 1`, sku)
}

// Get loads a product by id.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	return r.one(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (r *Repository) one(ctx context.Context, query string, arg any) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, query, arg).Scan(&p.ID, &p.SKU, &p.UPC, &p.Name, &p.UnitPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}
