package service

import (
	"context"
	"net/url"

	"github.com/handelsg/dojo-storefront/pkg/httpclient"
)

// Fetcher reads and decodes one JSON resource from the product API. It is
// implemented by *httpclient.Client, *httpclient.CircuitBreakerClient and
// the Redis response cache.
type Fetcher interface {
	Get(ctx context.Context, endpoint string, out any, opts ...httpclient.RequestOption) error
}

// Product API endpoints.
const (
	EndpointProducts   = "/products"
	EndpointCategories = "/products/categories"
)

func productEndpoint(id string) string {
	return EndpointProducts + "/" + url.PathEscape(id)
}

func categoryEndpoint(category string) string {
	return EndpointProducts + "/category/" + url.PathEscape(category)
}
