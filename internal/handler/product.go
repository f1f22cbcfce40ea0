package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dripmart/storefront/internal/domain/product"
)

type variantJSON struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

type productJSON struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Price      float64       `json:"price"`
	Category   string        `json:"category"`
	TotalStock int           `json:"totalStock"`
	Variants   []variantJSON `json:"sizeVariants,omitempty"`
}

func productToJSON(p *product.Product) productJSON {
	out := productJSON{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price.InexactFloat64(),
		Category:   p.Category,
		TotalStock: p.TotalStock,
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, variantJSON(v))
	}
	return out
}

// ListProducts returns the whole catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]productJSON, len(products))
	for i := range products {
		out[i] = productToJSON(&products[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productToJSON(p))
}

type productUpsertRequest struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Price    float64       `json:"price"`
	Category string        `json:"category"`
	Stock    int           `json:"totalStock"`
	Variants []variantJSON `json:"sizeVariants"`
}

func (req *productUpsertRequest) apply(p *product.Product) error {
	if req.Name == "" {
		return &validationError{"name is required"}
	}
	if req.Price < 0 {
		return &validationError{"price must not be negative"}
	}
	p.Name = req.Name
	p.Price = decimal.NewFromFloat(req.Price)
	p.Category = req.Category
	p.TotalStock = req.Stock
	p.Variants = p.Variants[:0]
	total := 0
	for _, v := range req.Variants {
		if v.Stock < 0 {
			return &validationError{"variant stock must not be negative"}
		}
		p.Variants = append(p.Variants, product.Variant(v))
		total += v.Stock
	}
	// With variants present the aggregate is derived, not client-supplied.
	if len(p.Variants) > 0 {
		p.TotalStock = total
	}
	return nil
}

// CreateProduct adds a catalog entry.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productUpsertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	p := &product.Product{ID: req.ID}
	if err := req.apply(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.products.Create(r.Context(), p); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, productToJSON(p))
}

// UpdateProduct rewrites a catalog entry.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productUpsertRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := req.apply(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.products.Update(r.Context(), p); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productToJSON(p))
}

// DeleteProduct removes a catalog entry.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type decrementStockRequest struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// DecrementVariantStock is the size-aware admin adjustment path: it fails on
// unknown sizes or insufficient stock and recomputes the aggregate counter.
// The checkout flow uses the aggregate clamp-at-zero decrement instead.
func (h *Handler) DecrementVariantStock(w http.ResponseWriter, r *http.Request) {
	var req decrementStockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if err := p.DecrementVariantStock(req.Size, req.Quantity); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if err := h.products.Update(r.Context(), p); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productToJSON(p))
}
