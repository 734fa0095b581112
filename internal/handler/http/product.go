package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/handelsg/dojo-storefront/internal/action"
	"github.com/handelsg/dojo-storefront/internal/domain"
	apperrors "github.com/handelsg/dojo-storefront/pkg/errors"
	"github.com/handelsg/dojo-storefront/pkg/httputil"
	"github.com/handelsg/dojo-storefront/pkg/logger"
	"github.com/handelsg/dojo-storefront/pkg/pagination"
	"github.com/handelsg/dojo-storefront/pkg/validator"
)

// ProductHandler handles HTTP requests for the storefront endpoints.
type ProductHandler struct {
	actions       *action.Actions
	featuredLimit int
	logger        *slog.Logger
}

// NewProductHandler creates a new product HTTP handler. featuredLimit sizes
// the featured list of the overview.
func NewProductHandler(actions *action.Actions, featuredLimit int, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		actions:       actions,
		featuredLimit: featuredLimit,
		logger:        logger,
	}
}

// --- Request DTOs ---

// RevalidateRequest is the optional JSON body of POST /api/v1/revalidate.
type RevalidateRequest struct {
	Path string `json:"path" validate:"omitempty,startswith=/,max=512"`
}

// RevalidateResponse reports a completed revalidation.
type RevalidateResponse struct {
	Revalidated bool   `json:"revalidated"`
	Path        string `json:"path"`
}

// --- Handlers ---

// ListProducts handles GET /api/v1/products. The response is paginated
// when page or per_page is present and the full filtered list otherwise.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filters, ok := parseFilters(w, r)
	if !ok {
		return
	}

	if pagination.Requested(r) {
		params, ok := parsePage(w, r)
		if !ok {
			return
		}
		writeResult(w, r, h.actions.ListProducts(r.Context(), filters, params), h.logger)
		return
	}

	writeResult(w, r, h.actions.GetProducts(r.Context(), filters), h.logger)
}

// GetProduct handles GET /api/v1/products/{id}.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, ok := httputil.ParsePositiveInt(w, "id", raw)
	if !ok {
		return
	}

	writeResult(w, r, h.actions.GetProductByID(r.Context(), strconv.Itoa(id)), h.logger)
}

// FeaturedProducts handles GET /api/v1/products/featured?limit=.
func (h *ProductHandler) FeaturedProducts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, ok := httputil.ParsePositiveInt(w, "limit", v)
		if !ok {
			return
		}
		limit = min(n, maxFeaturedLimit)
	}

	writeResult(w, r, h.actions.GetFeaturedProducts(r.Context(), limit), h.logger)
}

// SearchProducts handles GET /api/v1/products/search?q=.
func (h *ProductHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if len(term) > maxSearchLength {
		httputil.WriteInvalidParameter(w, "q", "longer than "+strconv.Itoa(maxSearchLength)+" characters")
		return
	}

	writeResult(w, r, h.actions.SearchProducts(r.Context(), term), h.logger)
}

// StaticParams handles GET /api/v1/products/static-params.
func (h *ProductHandler) StaticParams(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, h.actions.GetStaticParams(r.Context()), h.logger)
}

// ListCategories handles GET /api/v1/categories.
func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, h.actions.GetCategories(r.Context()), h.logger)
}

// ProductsByCategory handles GET /api/v1/categories/{category}/products.
func (h *ProductHandler) ProductsByCategory(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "category")
	category := raw
	// chi routes on RawPath when the request carried escapes the default
	// encoding would not produce; only then is the param still escaped.
	if r.URL.RawPath != "" {
		var err error
		if category, err = url.PathUnescape(raw); err != nil {
			httputil.WriteInvalidParameter(w, "category", raw)
			return
		}
	}
	if category == "" {
		httputil.WriteInvalidParameter(w, "category", raw)
		return
	}

	writeResult(w, r, h.actions.GetProductsByCategory(r.Context(), category), h.logger)
}

// Overview handles GET /api/v1/overview.
func (h *ProductHandler) Overview(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, h.actions.GetOverview(r.Context(), h.featuredLimit), h.logger)
}

// Revalidate handles POST /api/v1/revalidate.
func (h *ProductHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	var req RevalidateRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.actions.Revalidate(r.Context(), req.Path); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	writeResult(w, r, domain.Ok(RevalidateResponse{Revalidated: true, Path: req.Path}), h.logger)
}

// writeResult writes res as the JSON body. A failure is answered with the
// status of its cause: 404 for a missing product, 400 for bad input, 502
// when the product API is down.
func writeResult[T any](w http.ResponseWriter, r *http.Request, res domain.Result[T], fallback *slog.Logger) {
	if res.IsSuccess() {
		httputil.WriteJSON(w, http.StatusOK, res)
		return
	}

	status := http.StatusInternalServerError
	if cause := res.Cause(); cause != nil {
		status = apperrors.HTTPStatus(cause)
	}
	if status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() {
			l = fallback
		}
		l.WarnContext(r.Context(), "action returned failure",
			slog.Int("status", status),
			slog.String("message", res.Error()),
		)
	}
	httputil.WriteJSON(w, status, res)
}
