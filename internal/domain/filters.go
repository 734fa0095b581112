package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/handelsg/dojo-storefront/pkg/errors"
)

// SortField selects the sort key of a product list.
type SortField string

const (
	SortByPrice  SortField = "price"
	SortByRating SortField = "rating"
	SortByName   SortField = "name"
)

// SortOrder selects the sort direction. The zero value sorts ascending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ProductFilters narrows and orders a product list. Every zero-valued field
// is skipped.
type ProductFilters struct {
	Category  string           `json:"category,omitempty" query:"category"`
	MinPrice  *decimal.Decimal `json:"minPrice,omitempty" query:"min_price" validate:"omitempty,gte=0"`
	MaxPrice  *decimal.Decimal `json:"maxPrice,omitempty" query:"max_price" validate:"omitempty,gte=0"`
	Search    string           `json:"search,omitempty" query:"search" validate:"max=200"`
	SortBy    SortField        `json:"sortBy,omitempty" query:"sort_by" validate:"omitempty,oneof=price rating name"`
	SortOrder SortOrder        `json:"sortOrder,omitempty" query:"sort_order" validate:"omitempty,oneof=asc desc"`
}

// CheckPriceRange rejects a minimum price above the maximum.
func (f *ProductFilters) CheckPriceRange() error {
	if f == nil || f.MinPrice == nil || f.MaxPrice == nil {
		return nil
	}
	if f.MinPrice.GreaterThan(*f.MaxPrice) {
		return apperrors.InvalidInput(fmt.Sprintf(
			"min_price (%s) must not exceed max_price (%s)", f.MinPrice, f.MaxPrice))
	}
	return nil
}

// IsEmpty reports whether no filter field is set.
func (f *ProductFilters) IsEmpty() bool {
	return f == nil || *f == ProductFilters{}
}
