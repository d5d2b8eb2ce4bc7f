package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteTemplate(t *testing.T) {
	e := echo.New()
	e.Use(Metrics())
	e.GET("/items/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "no")
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "204"))

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "204"))
	if after-before != 2 {
		t.Fatalf("expected 2 requests recorded on the route template, got %v", after-before)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/boom", "418")); got < 1 {
		t.Fatalf("expected error status to be recorded, got %v", got)
	}
}
