// Package action is the boundary between transports and the product
// service: every operation returns a domain.Result instead of an error.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/handelsg/dojo-storefront/internal/domain"
	"github.com/handelsg/dojo-storefront/internal/event"
	apperrors "github.com/handelsg/dojo-storefront/pkg/errors"
	"github.com/handelsg/dojo-storefront/pkg/logger"
	"github.com/handelsg/dojo-storefront/pkg/pagination"
	"github.com/handelsg/dojo-storefront/pkg/slug"
)

// Fallback failure messages.
const (
	MsgProductsFailed = "could not load products"
	MsgSearchFailed   = "could not search products"
	MsgOverviewFailed = "could not load the storefront overview"
)

// ProductQuerier is the read side of the product service.
type ProductQuerier interface {
	GetAllProducts(ctx context.Context, filters *domain.ProductFilters) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetCategories(ctx context.Context) []string
	GetProductsByCategory(ctx context.Context, category string) []domain.Product
	GetFeaturedProducts(ctx context.Context, limit int) []domain.Product
	GetStaticParams(ctx context.Context) []domain.StaticParam
}

// Invalidator drops cached upstream responses by endpoint prefix.
type Invalidator interface {
	Invalidate(ctx context.Context, prefix string) (int, error)
}

// Overview is the home page payload.
type Overview struct {
	ProductCount int              `json:"productCount"`
	Categories   []string         `json:"categories"`
	Featured     []domain.Product `json:"featured"`
}

// Actions exposes the storefront operations.
type Actions struct {
	products ProductQuerier
	cache    Invalidator
	events   event.Publisher
	logger   *slog.Logger
}

// New creates the storefront actions.
func New(products ProductQuerier, cache Invalidator, events event.Publisher, logger *slog.Logger) *Actions {
	if events == nil {
		events = event.NopPublisher{}
	}
	return &Actions{
		products: products,
		cache:    cache,
		events:   events,
		logger:   logger,
	}
}

// GetProducts lists the catalog, optionally filtered and sorted.
func (a *Actions) GetProducts(ctx context.Context, filters *domain.ProductFilters) domain.Result[[]domain.Product] {
	ctx = logger.WithAction(ctx, "getProducts")

	if err := filters.CheckPriceRange(); err != nil {
		return domain.FailWith[[]domain.Product](apperrors.UserMessage(err, MsgProductsFailed), err)
	}

	products, err := a.products.GetAllProducts(ctx, filters)
	if err != nil {
		return fail[[]domain.Product](ctx, a.log(ctx), err, MsgProductsFailed)
	}
	return domain.Ok(products)
}

// GetProductByID loads one product.
func (a *Actions) GetProductByID(ctx context.Context, id string) domain.Result[domain.Product] {
	ctx = logger.WithAction(ctx, "getProductById")

	product, err := a.products.GetProductByID(ctx, id)
	if err != nil {
		return fail[domain.Product](ctx, a.log(ctx), err, fmt.Sprintf("could not load product %s", id))
	}
	return domain.Ok(*product)
}

// GetCategories lists the category names. The list is empty when the
// product API is unavailable.
func (a *Actions) GetCategories(ctx context.Context) domain.Result[[]string] {
	return domain.Ok(a.products.GetCategories(logger.WithAction(ctx, "getCategories")))
}

// GetProductsByCategory lists one category's products. category is either
// the upstream name ("men's clothing") or its slug ("mens-clothing").
func (a *Actions) GetProductsByCategory(ctx context.Context, category string) domain.Result[[]domain.Product] {
	ctx = logger.WithAction(ctx, "getProductsByCategory")
	return domain.Ok(a.products.GetProductsByCategory(ctx, a.resolveCategory(ctx, category)))
}

// resolveCategory maps a slug to the category it was generated from. Names
// that are not slugs, and slugs matching no category, pass through as is.
func (a *Actions) resolveCategory(ctx context.Context, category string) string {
	if !slug.Is(category) {
		return category
	}
	if name, ok := slug.Match(category, a.products.GetCategories(ctx)); ok {
		return name
	}
	return category
}

// GetFeaturedProducts lists the best-rated products.
func (a *Actions) GetFeaturedProducts(ctx context.Context, limit int) domain.Result[[]domain.Product] {
	return domain.Ok(a.products.GetFeaturedProducts(logger.WithAction(ctx, "getFeaturedProducts"), limit))
}

// GetStaticParams lists every product page to pre-render.
func (a *Actions) GetStaticParams(ctx context.Context) domain.Result[[]domain.StaticParam] {
	return domain.Ok(a.products.GetStaticParams(logger.WithAction(ctx, "getStaticParams")))
}

// SearchProducts matches term against title, description and category. A
// blank term matches nothing and does not reach the product API.
func (a *Actions) SearchProducts(ctx context.Context, term string) domain.Result[[]domain.Product] {
	ctx = logger.WithAction(ctx, "searchProducts")

	term = strings.TrimSpace(term)
	if term == "" {
		return domain.Ok([]domain.Product{})
	}

	products, err := a.products.GetAllProducts(ctx, &domain.ProductFilters{Search: term})
	if err != nil {
		a.log(ctx).ErrorContext(ctx, "search failed",
			slog.String("term", term),
			slog.String("error", err.Error()),
		)
		return domain.FailWith[[]domain.Product](MsgSearchFailed, err)
	}
	return domain.Ok(products)
}

// ListProducts returns one page of the filtered catalog.
func (a *Actions) ListProducts(ctx context.Context, filters *domain.ProductFilters, params pagination.Params) domain.Result[domain.PaginatedProducts] {
	ctx = logger.WithAction(ctx, "listProducts")

	if err := filters.CheckPriceRange(); err != nil {
		return domain.FailWith[domain.PaginatedProducts](apperrors.UserMessage(err, MsgProductsFailed), err)
	}

	products, err := a.products.GetAllProducts(ctx, filters)
	if err != nil {
		return fail[domain.PaginatedProducts](ctx, a.log(ctx), err, MsgProductsFailed)
	}

	page := pagination.Slice(products, params)
	return domain.Ok(domain.PaginatedProducts{
		Products:   page.Data,
		Total:      page.TotalCount,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalPages: page.TotalPages,
	})
}

// GetOverview loads the product count, categories and featured products
// concurrently. Only a failed catalog load fails the overview.
func (a *Actions) GetOverview(ctx context.Context, featuredLimit int) domain.Result[Overview] {
	ctx = logger.WithAction(ctx, "getOverview")

	var overview Overview
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		products, err := a.products.GetAllProducts(gctx, nil)
		if err != nil {
			return err
		}
		overview.ProductCount = len(products)
		return nil
	})
	g.Go(func() error {
		overview.Categories = a.products.GetCategories(gctx)
		return nil
	})
	g.Go(func() error {
		overview.Featured = a.products.GetFeaturedProducts(gctx, featuredLimit)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fail[Overview](ctx, a.log(ctx), err, MsgOverviewFailed)
	}
	return domain.Ok(overview)
}

// Revalidate drops cached product API responses whose endpoint starts with
// path (all of them when path is empty) and announces it. Only a cache
// failure is returned; a lost event is logged.
func (a *Actions) Revalidate(ctx context.Context, path string) error {
	ctx = logger.WithAction(ctx, "revalidate")

	path = strings.TrimSpace(path)
	if path != "" && !strings.HasPrefix(path, "/") {
		return apperrors.InvalidInput(fmt.Sprintf("path %q must start with /", path))
	}

	deleted, err := a.cache.Invalidate(ctx, path)
	if err != nil {
		return fmt.Errorf("revalidate %q: %w", path, err)
	}

	if err := a.events.PublishCatalogRevalidated(ctx, path, deleted); err != nil {
		a.log(ctx).WarnContext(ctx, "failed to publish revalidation event", slog.String("error", err.Error()))
	}

	a.log(ctx).InfoContext(ctx, "product cache revalidated",
		slog.String("path", path),
		slog.Int("invalidated_keys", deleted),
	)
	return nil
}

// fail logs err and turns it into a failed result carrying the user message
// of the error, or fallback when it has none.
func fail[T any](ctx context.Context, l *slog.Logger, err error, fallback string) domain.Result[T] {
	level := slog.LevelInfo
	if apperrors.HTTPStatus(err) >= 500 {
		level = slog.LevelError
	}
	l.Log(ctx, level, "action failed", slog.String("error", err.Error()))
	return domain.FailWith[T](apperrors.UserMessage(err, fallback), err)
}

func (a *Actions) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, a.logger)
}
