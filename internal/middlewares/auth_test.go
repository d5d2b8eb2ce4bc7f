package middlewares

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/broadcast-dispatch-service/internal/audit"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/response"
)

const serverKey = "secret"

func newEchoContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAPIKeyAuth_MissingServerKeyReturns500(t *testing.T) {
	mw := APIKeyAuth("")

	c, rec := newEchoContext(http.MethodPost, "/api/v1/broadcasts")
	handler := mw(func(c echo.Context) error {
		t.Fatalf("next handler must not run without a configured key")
		return nil
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}

	var body response.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body.Success || body.Error == "" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestAPIKeyAuth_Credentials(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"missing key", http.MethodPost, "/api/v1/broadcasts", "", http.StatusUnauthorized},
		{"wrong key", http.MethodPost, "/api/v1/broadcasts", "wrong-key", http.StatusUnauthorized},
		{"header key", http.MethodPut, "/api/v1/broadcasts/1", serverKey, http.StatusOK},
		{"query key on progress stream", http.MethodGet, "/api/v1/broadcasts/1/progress?" + APIKeyQueryParam + "=" + serverKey, "", http.StatusOK},
		{"query key ignored on PUT", http.MethodPut, "/api/v1/broadcasts/1?" + APIKeyQueryParam + "=" + serverKey, "", http.StatusUnauthorized},
	}

	mw := APIKeyAuth(serverKey)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newEchoContext(tc.method, tc.path)
			if tc.header != "" {
				c.Request().Header.Set(APIKeyHeader, tc.header)
			}

			err := mw(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})(c)
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestAPIKeyAuth_TagsActor(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", defaultActor},
		{"  selena  ", "selena"},
		{strings.Repeat("a", 100), strings.Repeat("a", maxActorLen)},
	}

	mw := APIKeyAuth(serverKey)
	for _, tc := range cases {
		c, _ := newEchoContext(http.MethodPost, "/api/v1/broadcasts/bulk")
		c.Request().Header.Set(APIKeyHeader, serverKey)
		if tc.header != "" {
			c.Request().Header.Set(ActorHeader, tc.header)
		}

		var got string
		err := mw(func(c echo.Context) error {
			got = audit.ActorFrom(c.Request().Context())
			return nil
		})(c)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if got != tc.want {
			t.Errorf("actor header %q: expected %q, got %q", tc.header, tc.want, got)
		}
	}
}
