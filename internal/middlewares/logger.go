package middlewares

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/topi314/clubhouse/internal/xslog"
)

const RequestLogMessage = "Handled request"

// Logger logs every request after it was handled.
func Logger(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		handler.ServeHTTP(rw, r)

		slog.InfoContext(r.Context(), RequestLogMessage,
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// QuietPaths returns a log filter dropping request log records of the given paths.
func QuietPaths(paths []string) xslog.FilterFunc {
	return xslog.DropAttr(RequestLogMessage, "path", paths...)
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
