package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/handelsg/dojo-storefront/internal/domain"
	apperrors "github.com/handelsg/dojo-storefront/pkg/errors"
	"github.com/handelsg/dojo-storefront/pkg/httpclient"
	"github.com/handelsg/dojo-storefront/pkg/logger"
)

// DefaultFeaturedLimit is the size of the featured list when none is given.
const DefaultFeaturedLimit = 4

// MsgProductsUnavailable is the user-facing message of a failed catalog load.
const MsgProductsUnavailable = "could not load products, try again later"

// ProductService reads the catalog from the product API and applies
// filtering and sorting in memory. Catalog and detail reads fail loudly;
// categories, category lists, featured products and static params degrade
// to an empty list.
type ProductService struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewProductService creates a new product service.
func NewProductService(fetcher Fetcher, logger *slog.Logger) *ProductService {
	return &ProductService{
		fetcher: fetcher,
		logger:  logger,
	}
}

// GetAllProducts fetches the full catalog and applies filters when non-nil.
func (s *ProductService) GetAllProducts(ctx context.Context, filters *domain.ProductFilters) ([]domain.Product, error) {
	var products []domain.Product
	if err := s.fetcher.Get(ctx, EndpointProducts, &products); err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to fetch products", slog.String("error", err.Error()))
		return nil, apperrors.Upstream(MsgProductsUnavailable, err)
	}
	if products == nil {
		products = []domain.Product{}
	}

	if filters != nil {
		return ApplyFilters(products, filters), nil
	}
	return products, nil
}

// GetProductByID fetches a single product. The product API answers an
// unknown id with an empty body, which becomes a not-found error.
func (s *ProductService) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	if err := s.fetcher.Get(ctx, productEndpoint(id), &product); err != nil {
		if httpclient.StatusCode(err) == http.StatusNotFound {
			return nil, apperrors.NotFound("product", id)
		}
		s.log(ctx).ErrorContext(ctx, "failed to fetch product",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Upstream(fmt.Sprintf("could not load product %s", id), err)
	}

	if product.IsZero() {
		return nil, apperrors.NotFound("product", id)
	}
	return &product, nil
}

// GetCategories fetches the distinct category names. It never fails.
func (s *ProductService) GetCategories(ctx context.Context) []string {
	var categories []string
	if err := s.fetcher.Get(ctx, EndpointCategories, &categories); err != nil {
		s.log(ctx).WarnContext(ctx, "failed to fetch categories", slog.String("error", err.Error()))
		return []string{}
	}
	if categories == nil {
		return []string{}
	}
	return categories
}

// GetProductsByCategory fetches the products the API files under category.
// It never fails.
func (s *ProductService) GetProductsByCategory(ctx context.Context, category string) []domain.Product {
	var products []domain.Product
	if err := s.fetcher.Get(ctx, categoryEndpoint(category), &products); err != nil {
		s.log(ctx).WarnContext(ctx, "failed to fetch products by category",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		return []domain.Product{}
	}
	if products == nil {
		return []domain.Product{}
	}
	return products
}

// GetFeaturedProducts returns the limit best-rated products, best first.
// A limit <= 0 means DefaultFeaturedLimit. It never fails.
func (s *ProductService) GetFeaturedProducts(ctx context.Context, limit int) []domain.Product {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}

	products, err := s.GetAllProducts(ctx, nil)
	if err != nil {
		return []domain.Product{}
	}

	sorted := SortProducts(products, domain.SortByRating, domain.SortDesc)
	if len(sorted) > limit {
		sorted = slices.Clip(sorted[:limit])
	}
	return sorted
}

// GetStaticParams lists the ids of every product page to pre-render. It
// never fails.
func (s *ProductService) GetStaticParams(ctx context.Context) []domain.StaticParam {
	products, err := s.GetAllProducts(ctx, nil)
	if err != nil {
		return []domain.StaticParam{}
	}

	params := make([]domain.StaticParam, 0, len(products))
	for _, p := range products {
		params = append(params, domain.StaticParamFor(p))
	}
	return params
}

func (s *ProductService) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}
