// compression.go - gzip for directory listings.
//
// Listings are repetitive HTML or JSON and shrink well. Stored items are
// served as written, so they are never compressed here.
package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// compressionResponseWriter wraps http.ResponseWriter to compress responses.
type compressionResponseWriter struct {
	http.ResponseWriter
	writer io.Writer
}

// Write compresses data before writing to the underlying writer.
func (crw *compressionResponseWriter) Write(b []byte) (int, error) {
	return crw.writer.Write(b)
}

// WriteHeader drops any Content-Length, which no longer matches the body.
func (crw *compressionResponseWriter) WriteHeader(code int) {
	crw.Header().Del("Content-Length")
	crw.ResponseWriter.WriteHeader(code)
}

// compressListings gzips listing responses for clients that accept it.
func compressListings(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")

		if !acceptsCompression(r) || !isListingPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		gz := gzip.NewWriter(w)
		defer gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")

		next.ServeHTTP(&compressionResponseWriter{ResponseWriter: w, writer: gz}, r)
	})
}

// acceptsCompression checks if the client accepts gzip encoding.
func acceptsCompression(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			continue
		}
		return qValue(params) > 0
	}
	return false
}

// qValue returns the q parameter of an Accept-Encoding entry, 1 when it is
// absent and 0 when it cannot be parsed.
func qValue(params string) float64 {
	for _, p := range strings.Split(params, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0
		}
		return q
	}
	return 1
}

// isListingPath reports whether path asks for a directory listing.
func isListingPath(path string) bool {
	return strings.HasPrefix(path, mailsPrefix) && strings.HasSuffix(path, "/")
}
