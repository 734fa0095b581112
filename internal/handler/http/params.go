package http

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/handelsg/dojo-storefront/internal/domain"
	"github.com/handelsg/dojo-storefront/pkg/httputil"
	"github.com/handelsg/dojo-storefront/pkg/pagination"
	"github.com/handelsg/dojo-storefront/pkg/validator"
)

const (
	maxFeaturedLimit = 20
	maxSearchLength  = 200
	maxPerPage       = 100
)

// parseFilters reads the product filters from the query string. It writes a
// 400 response and returns false on an invalid parameter. Absent filters
// yield nil.
func parseFilters(w http.ResponseWriter, r *http.Request) (*domain.ProductFilters, bool) {
	q := r.URL.Query()
	filters := &domain.ProductFilters{
		Category:  q.Get("category"),
		Search:    q.Get("search"),
		SortBy:    domain.SortField(q.Get("sort_by")),
		SortOrder: domain.SortOrder(q.Get("sort_order")),
	}

	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{name: "min_price", dst: &filters.MinPrice},
		{name: "max_price", dst: &filters.MaxPrice},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			httputil.WriteInvalidParameter(w, p.name, v)
			return nil, false
		}
		*p.dst = &d
	}

	if err := validator.Validate(filters); err != nil {
		httputil.WriteValidationError(w, err)
		return nil, false
	}
	if filters.IsEmpty() {
		return nil, true
	}
	return filters, true
}

// parsePage validates page and per_page. Unlike pagination.FromRequest it
// rejects bad values instead of replacing them.
func parsePage(w http.ResponseWriter, r *http.Request) (pagination.Params, bool) {
	q := r.URL.Query()
	page, perPage := 1, pagination.DefaultParams().PerPage

	if v := q.Get("page"); v != "" {
		n, ok := httputil.ParsePositiveInt(w, "page", v)
		if !ok {
			return pagination.Params{}, false
		}
		page = n
	}
	if v := q.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPerPage {
			httputil.WriteInvalidParameter(w, "per_page", v)
			return pagination.Params{}, false
		}
		perPage = n
	}
	return pagination.New(page, perPage), true
}
