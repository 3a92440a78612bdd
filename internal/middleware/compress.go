package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// CompressMiddleware brotli-encodes response bodies for clients that send
// Accept-Encoding: br
func CompressMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")
		if !acceptsBrotli(r.Header.Get("Accept-Encoding")) {
			next.ServeHTTP(w, r)
			return
		}

		bw := &brotliResponseWriter{ResponseWriter: w}
		defer bw.finish()
		next.ServeHTTP(bw, r)
	})
}

func acceptsBrotli(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "br") {
			continue
		}
		// br;q=0 is an explicit refusal
		return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
	}
	return false
}

type brotliResponseWriter struct {
	http.ResponseWriter
	bw          *brotli.Writer
	wroteHeader bool
	encode      bool
}

func (w *brotliResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if code != http.StatusNoContent && code != http.StatusNotModified && w.Header().Get("Content-Encoding") == "" {
		w.encode = true
		w.Header().Set("Content-Encoding", "br")
		w.Header().Del("Content-Length")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *brotliResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if !w.encode {
		return w.ResponseWriter.Write(b)
	}
	if w.bw == nil {
		w.bw = brotli.NewWriter(w.ResponseWriter)
	}
	return w.bw.Write(b)
}

func (w *brotliResponseWriter) finish() {
	if !w.encode {
		return
	}
	if w.bw == nil {
		w.bw = brotli.NewWriter(w.ResponseWriter)
	}
	_ = w.bw.Close()
}
