package middlewares

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/topi314/clubhouse/internal/xslog"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(old) })

	handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clubs", nil))

	out := buf.String()
	if !strings.Contains(out, "status=418") {
		t.Fatalf("expected status 418 to be logged, got %q", out)
	}
	if !strings.Contains(out, "path=/api/v1/clubs") {
		t.Fatalf("expected path to be logged, got %q", out)
	}
}

func TestNoStore(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}
}

func TestQuietPaths(t *testing.T) {
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(xslog.NewFilterHandler(slog.NewTextHandler(&buf, nil), QuietPaths([]string{"/health"}))))
	t.Cleanup(func() { slog.SetDefault(old) })

	handler := Logger(http.NotFoundHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Fatalf("expected /health to be dropped, got %q", buf.String())
	}

	slog.Info("Handled startup", slog.String("path", "/health"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/clubs", nil))
	out := buf.String()
	if !strings.Contains(out, "Handled startup") || !strings.Contains(out, "path=/api/v1/clubs") {
		t.Fatalf("expected other records to be kept, got %q", out)
	}
}
