package middlewares

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/broadcast-dispatch-service/internal/audit"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/response"
)

const (
	APIKeyHeader = "x-admin-key"
	// ActorHeader names the admin on whose behalf the CMS calls us. It only
	// labels audit entries; the key is what authorises.
	ActorHeader = "x-admin-actor"
	// APIKeyQueryParam serves EventSource clients, which cannot set headers.
	APIKeyQueryParam = "auth_key"

	defaultActor = "api-key"
	maxActorLen  = 64
)

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// APIKeyAuth guards an admin route group and tags the request context with
// the acting admin for the audit log.
func APIKeyAuth(apiKey string) echo.MiddlewareFunc {
	if apiKey == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return response.InternalServerError(
					c,
					fmt.Errorf("API key is not configured for this endpoint group"),
				)
			}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			token := req.Header.Get(APIKeyHeader)
			if token == "" && req.Method == http.MethodGet {
				token = c.QueryParam(APIKeyQueryParam)
			}
			if token == "" || !secureCompare(token, apiKey) {
				return response.Unauthorized(c)
			}

			ctx := audit.WithActor(req.Context(), actorName(req.Header.Get(ActorHeader)))
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}

func actorName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return defaultActor
	}
	if len(name) > maxActorLen {
		name = name[:maxActorLen]
	}
	return strings.ToValidUTF8(name, "")
}
