package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsErrorStatus(t *testing.T) {
	e := echo.New()
	e.Use(Middleware)
	e.GET("/things/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})

	req := httptest.NewRequest(http.MethodGet, "/things/42", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/things/:id", "404"))
	if got != 1 {
		t.Fatalf("404 counter = %v, want 1", got)
	}
	if n := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/things/:id", "200")); n != 0 {
		t.Fatalf("200 counter = %v, want 0", n)
	}
}

func TestMiddlewareCountsSuccessStatus(t *testing.T) {
	e := echo.New()
	e.Use(Middleware)
	e.GET("/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/ping", "204")); got != 1 {
		t.Fatalf("204 counter = %v, want 1", got)
	}
}
