package logger

import (
	"log/slog"
	"net/http"
	"time"
)

// loggingWriter wraps http.ResponseWriter to capture status code and size.
type loggingWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *loggingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// Flush forwards to the underlying writer so the progress stream keeps
// working behind this middleware.
func (w *loggingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestLogger returns a chi-compatible middleware that logs each request
// with method, path, status, duration_ms, and response size.
func RequestLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrap := &loggingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrap, r)
			log.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrap.status),
				slog.Int("duration_ms", int(time.Since(start).Milliseconds())),
				slog.Int("size", wrap.size),
			)
		})
	}
}
