package service

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/handelsg/dojo-storefront/internal/domain"
)

// ApplyFilters narrows products by category, then minimum price, then
// maximum price, then search term, and finally sorts the survivors. The
// input slice is never modified.
func ApplyFilters(products []domain.Product, filters *domain.ProductFilters) []domain.Product {
	filtered := slices.Clone(products)
	if filtered == nil {
		filtered = []domain.Product{}
	}
	if filters == nil {
		return filtered
	}

	if filters.Category != "" {
		filtered = slices.DeleteFunc(filtered, func(p domain.Product) bool {
			return !strings.EqualFold(p.Category, filters.Category)
		})
	}

	if filters.MinPrice != nil {
		filtered = slices.DeleteFunc(filtered, func(p domain.Product) bool {
			return p.Price.LessThan(*filters.MinPrice)
		})
	}

	if filters.MaxPrice != nil {
		filtered = slices.DeleteFunc(filtered, func(p domain.Product) bool {
			return p.Price.GreaterThan(*filters.MaxPrice)
		})
	}

	if filters.Search != "" {
		term := strings.ToLower(filters.Search)
		filtered = slices.DeleteFunc(filtered, func(p domain.Product) bool {
			return !matchesSearch(p, term)
		})
	}

	if filters.SortBy != "" {
		filtered = SortProducts(filtered, filters.SortBy, filters.SortOrder)
	}

	return filtered
}

func matchesSearch(p domain.Product, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(p.Title), lowerTerm) ||
		strings.Contains(strings.ToLower(p.Description), lowerTerm) ||
		strings.Contains(strings.ToLower(p.Category), lowerTerm)
}

// SortProducts returns a stably sorted copy of products. Titles are compared
// with English collation rules. An empty order sorts ascending; an unknown
// field keeps the input order.
func SortProducts(products []domain.Product, sortBy domain.SortField, order domain.SortOrder) []domain.Product {
	sorted := slices.Clone(products)

	multiplier := 1
	if order == domain.SortDesc {
		multiplier = -1
	}

	var compare func(a, b domain.Product) int
	switch sortBy {
	case domain.SortByPrice:
		compare = func(a, b domain.Product) int { return a.Price.Cmp(b.Price) }
	case domain.SortByRating:
		compare = func(a, b domain.Product) int { return cmp.Compare(a.Rating.Rate, b.Rating.Rate) }
	case domain.SortByName:
		// A Collator keeps internal buffers and must not be shared.
		c := collate.New(language.English)
		compare = func(a, b domain.Product) int { return c.CompareString(a.Title, b.Title) }
	default:
		return sorted
	}

	slices.SortStableFunc(sorted, func(a, b domain.Product) int {
		return compare(a, b) * multiplier
	})
	return sorted
}
