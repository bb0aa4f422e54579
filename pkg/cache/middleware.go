package cache

import (
	"bytes"
	"net/http"
)

// captureWriter records the status and body written by the wrapped handler.
type captureWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	if w.statusCode == 0 {
		w.statusCode = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Middleware caches 200 responses to GET requests in c, keyed by path and
// query. Responses carry X-Cache: HIT or MISS.
func Middleware(c *LRUCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.URL.RequestURI()
			if body, contentType, ok := c.Get(key); ok {
				w.Header().Set("Content-Type", contentType)
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(body)
				return
			}

			cw := &captureWriter{ResponseWriter: w}
			cw.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(cw, r)

			if cw.statusCode == http.StatusOK {
				c.Set(key, bytes.Clone(cw.body.Bytes()), cw.Header().Get("Content-Type"))
			}
		})
	}
}
