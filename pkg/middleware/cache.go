package middleware

import (
	"fmt"
	"net/http"
	"time"
)

type cacheControlWriter struct {
	http.ResponseWriter
	value       string
	wroteHeader bool
}

func (w *cacheControlWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if code < http.StatusBadRequest && w.Header().Get("Cache-Control") == "" {
			w.Header().Set("Cache-Control", w.value)
		} else if code >= http.StatusBadRequest {
			w.Header().Set("Cache-Control", "no-store")
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheControlWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// CacheControl marks successful GET responses as publicly cacheable for
// maxAge, serving stale content for another maxAge while the catalog is
// revalidated. Error responses are marked no-store. A handler that sets its
// own Cache-Control wins.
func CacheControl(maxAge time.Duration) func(http.Handler) http.Handler {
	secs := int(maxAge / time.Second)
	value := fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d", secs, secs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || secs <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(&cacheControlWriter{ResponseWriter: w, value: value}, r)
		})
	}
}
