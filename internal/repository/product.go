package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dripmart/storefront/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, category, total_stock, variants, created_at, updated_at
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, category, total_stock, variants, created_at, updated_at
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, price, category, total_stock, variants, created_at, updated_at
		FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (id, name, price, category, total_stock, variants)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateProductSQL = `UPDATE products SET
		name = $2, price = $3, category = $4, total_stock = $5, variants = $6, updated_at = now()
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	// decrementStockSQL clamps at zero inside the UPDATE so concurrent
	// decrements cannot lose updates or drive the counter negative. The CTE
	// locks the row before reading, so the prior value it reports is the one
	// the update was applied to and the clamp flag cannot come from a stale
	// snapshot.
	decrementStockSQL = `WITH prev AS (
			SELECT total_stock FROM products WHERE id = $1 FOR UPDATE
		)
		UPDATE products p
		SET total_stock = GREATEST(p.total_stock - $2, 0), updated_at = now()
		FROM prev
		WHERE p.id = $1
		RETURNING p.total_stock, prev.total_stock < $2`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create persists a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	variants, err := json.Marshal(p.Variants)
	if err != nil {
		return fmt.Errorf("marshaling variants: %w", err)
	}
	if _, err := r.pool.Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Price, p.Category, p.TotalStock, variants,
	); err != nil {
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update rewrites the product, including its variant list. This is the
// size-aware save path: callers mutate variants via the entity and persist
// the recomputed aggregate here.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	variants, err := json.Marshal(p.Variants)
	if err != nil {
		return fmt.Errorf("marshaling variants: %w", err)
	}
	tag, err := r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Price, p.Category, p.TotalStock, variants,
	)
	if err != nil {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product by ID.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// DecrementStock atomically subtracts qty from the aggregate stock counter,
// clamping at zero. The clamped flag reports that the product had less stock
// than the order consumed.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) (int, bool, error) {
	var (
		newStock int
		clamped  bool
	)
	err := r.pool.QueryRow(ctx, decrementStockSQL, id, qty).Scan(&newStock, &clamped)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, product.ErrNotFound
		}
		return 0, false, fmt.Errorf("decrementing stock for %q: %w", id, err)
	}
	return newStock, clamped, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		variants []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.Category, &p.TotalStock, &variants,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(variants, &p.Variants); err != nil {
		return p, fmt.Errorf("unmarshaling variants for %q: %w", p.ID, err)
	}
	return p, nil
}
