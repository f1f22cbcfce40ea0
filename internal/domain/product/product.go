package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrSizeNotAvailable is returned when a product has no variant for the
// requested size.
var ErrSizeNotAvailable = errors.New("size not available")

// InsufficientStockError indicates a variant does not hold enough stock for
// the requested quantity.
type InsufficientStockError struct {
	ProductID string
	Size      string
	Have      int
	Want      int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s size %s: have %d, want %d",
		e.ProductID, e.Size, e.Have, e.Want)
}

// Variant is a per-size stock counter.
type Variant struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

// Product is a catalog entry. TotalStock is the aggregate counter the
// checkout flow decrements; when Variants exist it is kept equal to the sum
// of variant stocks by the size-aware path.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	Category   string
	TotalStock int
	Variants   []Variant
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DecrementVariantStock reduces the stock of the variant matching size by
// qty and recomputes TotalStock as the sum over variants. Used by the admin
// adjustment path; the checkout flow decrements the aggregate counter only.
func (p *Product) DecrementVariantStock(size string, qty int) error {
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.Size != size {
			continue
		}
		if v.Stock < qty {
			return &InsufficientStockError{ProductID: p.ID, Size: size, Have: v.Stock, Want: qty}
		}
		v.Stock -= qty
		p.recomputeTotal()
		return nil
	}
	return ErrSizeNotAvailable
}

func (p *Product) recomputeTotal() {
	total := 0
	for _, v := range p.Variants {
		total += v.Stock
	}
	p.TotalStock = total
}

// Repository provides persistence for products.
//
// DecrementStock subtracts qty from the aggregate stock counter atomically,
// clamping at zero. It returns the resulting stock level and whether the
// clamp fired, which indicates an oversell: the decrement wanted more stock
// than was available. Concurrent decrements must never interleave as lost
// updates.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	DecrementStock(ctx context.Context, id string, qty int) (newStock int, clamped bool, err error)
}
