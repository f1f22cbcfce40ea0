package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dripmart/storefront/internal/domain/coupon"
)

const couponColumns = `id, code, discount_type, discount_value, minimum_purchase, max_discount,
	expires_at, active, public, owner_id, max_uses, used_count, used_by,
	one_per_user, description, categories, product_ids, created_at`

const (
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE public OR owner_id = $1 ORDER BY created_at DESC`

	listAllCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC`

	createCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	updateCouponSQL = `UPDATE coupons SET
		discount_type = $2, discount_value = $3, minimum_purchase = $4, max_discount = $5,
		expires_at = $6, active = $7, public = $8, owner_id = $9, max_uses = $10,
		used_count = $11, used_by = $12, one_per_user = $13, description = $14,
		categories = $15, product_ids = $16
		WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	// redeemCouponSQL re-checks the usage limit, private ownership, and
	// one-per-user constraints inside the UPDATE itself, so two concurrent
	// redemptions of a coupon with one remaining use cannot both win: the
	// guard sees the committed used_count/used_by of whichever came first.
	redeemCouponSQL = `UPDATE coupons SET
		used_count = used_count + 1,
		used_by = CASE WHEN $2 = ANY(used_by) THEN used_by ELSE array_append(used_by, $2) END,
		active = CASE
			WHEN NOT public AND owner_id IS NOT NULL THEN FALSE
			WHEN max_uses IS NOT NULL AND used_count + 1 >= max_uses THEN FALSE
			ELSE active
		END
		WHERE code = $1
		  AND active
		  AND (max_uses IS NULL OR used_count < max_uses)
		  AND (public OR owner_id IS NULL OR owner_id = $2)
		  AND (NOT public OR NOT one_per_user OR NOT ($2 = ANY(used_by)))
		RETURNING ` + couponColumns

	deleteGiftCouponsSQL = `DELETE FROM coupons
		WHERE owner_id = $1 AND description ILIKE '%gift%'`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
// Returns coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByCodeSQL, code)
}

// FindByID looks up a coupon by its ID.
func (r *CouponRepository) FindByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByIDSQL, id)
}

func (r *CouponRepository) findOne(ctx context.Context, sql string, arg any) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding coupon: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon: %w", err)
	}
	return &c, nil
}

// List returns coupons visible to the given user: all public coupons plus
// the user's private ones. An empty userID lists every coupon (admin view).
func (r *CouponRepository) List(ctx context.Context, userID string) ([]coupon.Coupon, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if userID == "" {
		rows, err = r.pool.Query(ctx, listAllCouponsSQL)
	} else {
		rows, err = r.pool.Query(ctx, listCouponsSQL, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Create persists a new coupon.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, createCouponSQL,
		c.ID, c.Code, c.Type, c.DiscountValue, c.MinimumPurchase, c.MaxDiscount,
		c.ExpiresAt, c.Active, c.Public, c.OwnerID, c.MaxUses, c.UsedCount,
		c.UsedBy, c.OnePerUser, c.Description, c.Categories, c.ProductIDs, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update rewrites every mutable field of the coupon. The code is immutable.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, c.Type, c.DiscountValue, c.MinimumPurchase, c.MaxDiscount,
		c.ExpiresAt, c.Active, c.Public, c.OwnerID, c.MaxUses, c.UsedCount,
		c.UsedBy, c.OnePerUser, c.Description, c.Categories, c.ProductIDs,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon by ID.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Redeem atomically records a redemption by userID. The usage-limit,
// ownership, and one-per-user guards are part of the UPDATE's WHERE clause;
// a concurrent redemption that consumed the last use causes this one to
// return coupon.ErrRedemptionConflict instead of overcounting.
func (r *CouponRepository) Redeem(ctx context.Context, code, userID string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, redeemCouponSQL, code, userID)
	if err != nil {
		return nil, fmt.Errorf("redeeming coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("redeeming coupon %q: %w", code, err)
	}

	// Zero rows: either the coupon is gone or the guard rejected it.
	var exists bool
	if err := r.pool.QueryRow(ctx, couponExistsSQL, code).Scan(&exists); err != nil {
		return nil, fmt.Errorf("redeeming coupon %q: %w", code, err)
	}
	if !exists {
		return nil, coupon.ErrNotFound
	}
	return nil, coupon.ErrRedemptionConflict
}

// DeleteGiftCoupons removes every gift coupon owned by the user. Zero
// deletions is not an error: most orders are the user's first qualifying one.
func (r *CouponRepository) DeleteGiftCoupons(ctx context.Context, ownerID string) error {
	if _, err := r.pool.Exec(ctx, deleteGiftCouponsSQL, ownerID); err != nil {
		return fmt.Errorf("deleting gift coupons for %q: %w", ownerID, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Type, &c.DiscountValue, &c.MinimumPurchase, &c.MaxDiscount,
		&c.ExpiresAt, &c.Active, &c.Public, &c.OwnerID, &c.MaxUses, &c.UsedCount,
		&c.UsedBy, &c.OnePerUser, &c.Description, &c.Categories, &c.ProductIDs, &c.CreatedAt,
	)
	return c, err
}
