package domain

import (
	"strconv"

	"github.com/shopspring/decimal"
)

func init() {
	// The product API speaks plain JSON numbers for prices.
	decimal.MarshalJSONWithoutQuotes = true
}

// Rating is the aggregate customer rating of a product.
type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// Product is a read-only catalog entry as served by the product API.
type Product struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Rating      Rating          `json:"rating"`
}

// IsZero reports whether p carries no usable product, which is how the
// product API answers an unknown id.
func (p Product) IsZero() bool {
	return p.ID == 0 && p.Title == ""
}

// PaginatedProducts is one page of a filtered product list.
type PaginatedProducts struct {
	Products   []Product `json:"products"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PerPage    int       `json:"perPage"`
	TotalPages int       `json:"totalPages"`
}

// StaticParam identifies one product page to pre-render.
type StaticParam struct {
	ID string `json:"id"`
}

// StaticParamFor projects a product onto its page parameter.
func StaticParamFor(p Product) StaticParam {
	return StaticParam{ID: strconv.Itoa(p.ID)}
}
