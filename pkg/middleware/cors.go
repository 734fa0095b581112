package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig lists the browser origins and request shapes the API accepts.
// Empty slices and a zero MaxAge fall back to the storefront defaults.
type CORSConfig struct {
	AllowedOrigins   []string // "*" admits any origin
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	MaxAge           int // seconds a preflight may be cached
	AllowCredentials bool
	// Environment "development" answers every origin with "*".
	Environment string
}

const defaultPreflightMaxAge = 3600

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	defaultCORSHeaders = []string{"Accept", "Content-Type", "X-Correlation-ID"}
)

// DefaultCORSConfig is the local development setup.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		ExposedHeaders: []string{"X-Correlation-ID"},
		Environment:    "development",
	}
}

// corsPolicy is a CORSConfig with every header value precomputed.
type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]bool
	static      http.Header
	credentials bool
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = defaultPreflightMaxAge
	}

	p := corsPolicy{
		anyOrigin:   cfg.Environment == "development",
		origins:     make(map[string]bool, len(cfg.AllowedOrigins)),
		credentials: cfg.AllowCredentials,
		static: http.Header{
			"Access-Control-Allow-Methods": {strings.Join(methods, ", ")},
			"Access-Control-Allow-Headers": {strings.Join(headers, ", ")},
			"Access-Control-Max-Age":       {strconv.Itoa(maxAge)},
		},
	}
	if len(cfg.ExposedHeaders) > 0 {
		p.static.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposedHeaders, ", "))
	}
	for _, o := range cfg.AllowedOrigins {
		p.anyOrigin = p.anyOrigin || o == "*"
		p.origins[o] = true
	}
	return p
}

func (p corsPolicy) apply(h http.Header, origin string) {
	switch {
	case p.anyOrigin:
		h.Set("Access-Control-Allow-Origin", "*")
	case origin != "" && p.origins[origin]:
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Vary", "Origin")
	}
	for k, v := range p.static {
		h.Set(k, v[0])
	}
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}

// CORS decorates every response with the policy built from cfg and answers
// preflight requests with 204 without calling next. A plain OPTIONS is
// passed through.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy.apply(w.Header(), r.Header.Get("Origin"))
			if isPreflight(r) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
